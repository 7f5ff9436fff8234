// Package bundle has the in-memory bundle handle, the bundle container codec and the engine
// that instantiates bundles from files, memory buffers and streams.
package bundle

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// Magic identifies a bundle container. It's followed by a CBOR document.
var Magic = []byte("ABF1")

// Bundle is a loaded bundle handle.
type Bundle struct {
	name   string
	assets map[string][]byte

	unloadOnce sync.Once
	onUnload   func()
}

// New returns a new bundle handle.
func New(name string, assets map[string][]byte) *Bundle {
	if assets == nil {
		assets = map[string][]byte{}
	}
	return &Bundle{name: name, assets: assets}
}

// Name returns the bundle name.
func (b *Bundle) Name() string { return b.name }

// Assets returns the sorted asset addresses of the bundle.
func (b *Bundle) Assets() []string {
	names := make([]string, 0, len(b.assets))
	for n := range b.assets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Asset returns the data of an asset.
func (b *Bundle) Asset(address string) ([]byte, bool) {
	data, ok := b.assets[address]
	return data, ok
}

// Size returns the sum of all asset sizes.
func (b *Bundle) Size() int64 {
	var total int64
	for _, data := range b.assets {
		total += int64(len(data))
	}
	return total
}

// Unload releases the bundle from the engine that loaded it. Safe to call multiple times.
func (b *Bundle) Unload() {
	b.unloadOnce.Do(func() {
		if b.onUnload != nil {
			b.onUnload()
		}
	})
}

type container struct {
	Name   string            `cbor:"name"`
	Assets map[string][]byte `cbor:"assets"`
}

// Encode encodes a bundle into its container format.
func Encode(name string, assets map[string][]byte) ([]byte, error) {
	if name == "" {
		return nil, fmt.Errorf("bundle name is required")
	}

	body, err := cbor.Marshal(container{Name: name, Assets: assets})
	if err != nil {
		return nil, fmt.Errorf("could not encode bundle %s: %w", name, err)
	}

	data := make([]byte, 0, len(Magic)+len(body))
	data = append(data, Magic...)
	data = append(data, body...)
	return data, nil
}

// Decode decodes a bundle container.
func Decode(data []byte) (*Bundle, error) {
	if !bytes.HasPrefix(data, Magic) {
		return nil, fmt.Errorf("missing bundle container magic")
	}

	var c container
	if err := cbor.Unmarshal(data[len(Magic):], &c); err != nil {
		return nil, fmt.Errorf("could not decode bundle container: %w", err)
	}
	if c.Name == "" {
		return nil, fmt.Errorf("bundle container without name")
	}

	return New(c.Name, c.Assets), nil
}
