package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/trezcool/colegio/core"
)

// Charge kinds of a payment plan
const (
	ChargeEnrollment ChargeKind = iota
	ChargeTuition
	ChargeMaterials
	ChargeUniform
	ChargeTransport
)

var (
	ChargeKinds = []ChargeKind{ChargeEnrollment, ChargeTuition, ChargeMaterials, ChargeUniform, ChargeTransport}

	chargeKindNames = map[ChargeKind]string{
		ChargeEnrollment: "enrollment",
		ChargeTuition:    "tuition",
		ChargeMaterials:  "materials",
		ChargeUniform:    "uniform",
		ChargeTransport:  "transport",
	}
)

type ChargeKind int

func (k ChargeKind) String() string {
	if name, ok := chargeKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ChargeKind(%d)", int(k))
}

func (k ChargeKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Catalog maps every charge kind to the name of the FeeType its fees are filed under.
type Catalog map[ChargeKind]string

func DefaultCatalog() Catalog {
	return Catalog{
		ChargeEnrollment: "Matricula",
		ChargeTuition:    "Mensualidad",
		ChargeMaterials:  "Materiales",
		ChargeUniform:    "Uniforme",
		ChargeTransport:  "Transporte",
	}
}

// CatalogFromConfig builds a Catalog from the configured names; blank names keep their default.
func CatalogFromConfig(names core.FeeTypeNames) Catalog {
	cat := DefaultCatalog()
	for kind, name := range map[ChargeKind]string{
		ChargeEnrollment: names.Enrollment,
		ChargeTuition:    names.Tuition,
		ChargeMaterials:  names.Materials,
		ChargeUniform:    names.Uniform,
		ChargeTransport:  names.Transport,
	} {
		if name = core.CleanString(name); name != "" {
			cat[kind] = name
		}
	}
	return cat
}

// Names returns the FeeType names in ChargeKinds order.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c))
	for _, kind := range ChargeKinds {
		if name, ok := c[kind]; ok {
			names = append(names, name)
		}
	}
	return names
}

// Resolve picks, for every charge kind, its FeeType out of types (keyed by name).
// Kinds whose FeeType is missing are left out.
func (c Catalog) Resolve(types map[string]FeeType) map[ChargeKind]FeeType {
	resolved := make(map[ChargeKind]FeeType, len(c))
	for kind, name := range c {
		if ft, ok := types[name]; ok {
			resolved[kind] = ft
		}
	}
	return resolved
}

// Omission reports a charge that was not turned into a fee.
type Omission struct {
	Kind        ChargeKind      `json:"kind"`
	FeeTypeName string          `json:"fee_type_name"`
	Amount      decimal.Decimal `json:"amount"`
	Reason      string          `json:"reason"`
}

func (o Omission) String() string {
	return fmt.Sprintf("%s charge of %s omitted: %s", o.Kind, o.Amount.StringFixed(2), o.Reason)
}
