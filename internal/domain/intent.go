package domain

// IntentLabel classifies what a question is asking for.
type IntentLabel string

const (
	// IntentDocumentLookup is a request to locate or open a document itself.
	IntentDocumentLookup IntentLabel = "document_lookup"
	// IntentInformationLookup is a request for a specific piece of information.
	IntentInformationLookup IntentLabel = "information_lookup"
	// IntentMultiPart combines document lookup with information requests.
	IntentMultiPart IntentLabel = "multi_part"
)

// MinIntentConfidence is the threshold below which any predicted label is
// downgraded to IntentInformationLookup. The downgrade trades recall of
// document-lookup/multi-part handling for a safe default.
const MinIntentConfidence = 0.7

// Intent is a classified question intent.
type Intent struct {
	Label      IntentLabel
	Confidence float64
	Reason     string
}

// ValidIntentLabel reports whether s is a known intent label.
func ValidIntentLabel(s string) bool {
	switch IntentLabel(s) {
	case IntentDocumentLookup, IntentInformationLookup, IntentMultiPart:
		return true
	}
	return false
}
