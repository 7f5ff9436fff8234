// Package address has the rules that map collected asset paths to their logical addresses.
package address

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/slok/assetpipe/internal/model"
)

// Rule computes the logical address of an asset.
type Rule interface {
	Address(d model.AddressRuleData) string
}

// RuleFunc is a helper to use functions as rules.
type RuleFunc func(d model.AddressRuleData) string

func (r RuleFunc) Address(d model.AddressRuleData) string { return r(d) }

// ByFileName addresses assets by their file name without extension.
var ByFileName = RuleFunc(func(d model.AddressRuleData) string {
	return fileNameWithoutExt(d.AssetPath)
})

// ByGroupAndFileName addresses assets with `{group}_{file name}`.
var ByGroupAndFileName = RuleFunc(func(d model.AddressRuleData) string {
	return fmt.Sprintf("%s_%s", d.GroupName, fileNameWithoutExt(d.AssetPath))
})

// ByFolderAndFileName addresses assets with `{collector name}_{file name}`, the collector
// name is the last element of the collect path, not the asset parent folder.
var ByFolderAndFileName = RuleFunc(func(d model.AddressRuleData) string {
	return fmt.Sprintf("%s_%s", fileNameWithoutExt(d.CollectPath), fileNameWithoutExt(d.AssetPath))
})

const (
	RuleNameFileName         = "file_name"
	RuleNameGroupAndFileName = "group_file_name"
	RuleNameFolderAndFile    = "folder_file_name"
)

var rules = map[string]Rule{
	RuleNameFileName:         ByFileName,
	RuleNameGroupAndFileName: ByGroupAndFileName,
	RuleNameFolderAndFile:    ByFolderAndFileName,
}

// RuleFor returns the rule registered with the name.
func RuleFor(name string) (Rule, error) {
	r, ok := rules[name]
	if !ok {
		return nil, fmt.Errorf("address rule %q: %w", name, model.ErrNotFound)
	}
	return r, nil
}

// RuleNames returns the sorted names of the registered rules.
func RuleNames() []string {
	names := make([]string, 0, len(rules))
	for n := range rules {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func fileNameWithoutExt(path string) string {
	base := filepath.Base(filepath.ToSlash(path))
	return strings.TrimSuffix(base, filepath.Ext(base))
}
