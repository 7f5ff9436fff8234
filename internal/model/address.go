package model

// AddressRuleData is the input of an address rule.
type AddressRuleData struct {
	AssetPath   string
	GroupName   string
	CollectPath string
}

// AssetAddress is the logical address computed for an asset.
type AssetAddress struct {
	AssetPath string
	Address   string
}
