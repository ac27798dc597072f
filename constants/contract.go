package constants

// ContractType is the classification result for a document session.
// Immutable once set for a session.
type ContractType string

const (
	ContractVendor           ContractType = "vendor_contract"
	ContractServiceAgreement ContractType = "service_agreement"
	ContractPurchaseOrder    ContractType = "purchase_order"
	ContractNDA              ContractType = "nda"
	ContractUnknown          ContractType = "unknown"
)

// KnownContractTypes holds every type the schema registry defines a field
// set for. ContractUnknown is deliberately absent: an unknown document is
// aborted, never extracted against a guessed schema.
var KnownContractTypes = []ContractType{
	ContractVendor,
	ContractServiceAgreement,
	ContractPurchaseOrder,
	ContractNDA,
}

// IsExtractable reports whether t has a defined schema.
func (t ContractType) IsExtractable() bool {
	for _, k := range KnownContractTypes {
		if t == k {
			return true
		}
	}
	return false
}
