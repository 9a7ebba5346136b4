package ledger

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// BundleFormatVersion is written into every exported bundle.
const BundleFormatVersion = 1

// Bundle is the single-document full-state export consumed by restore.
type Bundle struct {
	FormatVersion int        `json:"format_version"`
	ExportedAt    time.Time  `json:"exported_at"`
	People        *[]Person  `json:"people"`
	Products      *[]Product `json:"products"`
	Branding      *Branding  `json:"branding"`
}

// EncodeBundle serialises s as an indented JSON bundle.
func EncodeBundle(s Snapshot, at time.Time) ([]byte, error) {
	people, products, branding := s.People, s.Products, s.Branding
	if people == nil {
		people = []Person{}
	}
	if products == nil {
		products = []Product{}
	}
	b := Bundle{
		FormatVersion: BundleFormatVersion,
		ExportedAt:    at.UTC(),
		People:        &people,
		Products:      &products,
		Branding:      &branding,
	}
	return json.MarshalIndent(b, "", "  ")
}

// DecodeBundle parses and validates a bundle. All three collections must be
// present; a document missing any of them is rejected as a whole.
func DecodeBundle(data []byte) (Snapshot, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return Snapshot{}, &ValidationError{Field: "bundle", Reason: fmt.Sprintf("malformed JSON: %v", err)}
	}
	if b.FormatVersion != 0 && b.FormatVersion > BundleFormatVersion {
		return Snapshot{}, &ValidationError{Field: "format_version", Reason: fmt.Sprintf("unsupported version %d", b.FormatVersion)}
	}
	if b.People == nil || b.Products == nil || b.Branding == nil {
		return Snapshot{}, &ValidationError{Field: "bundle", Reason: "people, products and branding are all required"}
	}
	s := Snapshot{People: *b.People, Products: *b.Products, Branding: *b.Branding}
	for i := range s.People {
		for j := range s.People[i].Purchases {
			if s.People[i].Purchases[j].Kind == "" {
				s.People[i].Purchases[j].Kind = inferKind(s.People[i].Purchases[j])
			}
		}
	}
	if err := ValidateSnapshot(s); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

// inferKind tags entries written before Kind existed, using the sentinel
// product id of their single line.
func inferKind(p Purchase) EntryKind {
	if len(p.Items) != 1 {
		return KindSale
	}
	id := p.Items[0].ProductID
	switch {
	case strings.HasPrefix(id, KindWithdrawal.sentinelPrefix()):
		return KindWithdrawal
	case strings.HasPrefix(id, KindMissionaryOffer.sentinelPrefix()):
		return KindMissionaryOffer
	case id == "encerramento" || strings.HasPrefix(id, KindSettlement.sentinelPrefix()):
		return KindSettlement
	}
	return KindSale
}
