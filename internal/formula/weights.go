package formula

import "reflect"

// Age bucket keys for MineralWeights.AgeMultipliers.
const (
	AgeBucket18To30 = "18-30"
	AgeBucket31To50 = "31-50"
	AgeBucket51To70 = "51-70"
	AgeBucket70Plus = "70+"
)

// AgeBucketFor returns the age bucket key for the given age in years.
// Ages below 18 fall into the youngest bucket.
func AgeBucketFor(age int) string {
	switch {
	case age <= 30:
		return AgeBucket18To30
	case age <= 50:
		return AgeBucket31To50
	case age <= 70:
		return AgeBucket51To70
	default:
		return AgeBucket70Plus
	}
}

// MineralWeights holds the tunable dosing parameters for one mineral.
// All numeric fields must remain non-negative.
type MineralWeights struct {
	BaseDose float64 `json:"base_dose"` // mg, starting point before multipliers

	AgeMultipliers map[string]float64 `json:"age_multipliers"`
	SexMultipliers map[string]float64 `json:"sex_multipliers"`

	// WeightFactor is mg added per kg of body weight above the
	// 70 kg threshold. Zero for every mineral except magnesium.
	WeightFactor float64 `json:"weight_factor"`

	// IssueAdjustments adds a fixed mg amount per recognized sleep
	// issue tag present in the profile.
	IssueAdjustments map[string]float64 `json:"issue_adjustments"`

	// GapFillFraction scales the dietary shortfall
	// max(0, reference − intake) added to the dose.
	GapFillFraction float64 `json:"gap_fill_fraction"`

	MaxDose float64 `json:"max_dose"` // mg, hard upper bound
	Form    string  `json:"form"`     // delivery form, e.g. "glycinate"
}

// Interactions holds cross-mineral target ratios.
type Interactions struct {
	// MgCaTarget is the target magnesium:calcium dose ratio.
	// Calcium is recomputed from magnesium when the actual ratio
	// deviates by more than ±20%.
	MgCaTarget float64 `json:"mg_ca_target"`

	// KNaTarget is the target potassium:sodium dose ratio. Only
	// corrected downward (sodium lowered) when sodium is too high.
	KNaTarget float64 `json:"k_na_target"`
}

// WeightTable is the complete tunable parameter set for the
// formulation engine. Versioned and persisted; see Store.
type WeightTable struct {
	Minerals     map[string]*MineralWeights `json:"minerals"`
	Interactions Interactions               `json:"interactions"`

	// MedicationAdjustments maps medication tag → mineral →
	// multiplicative factor.
	MedicationAdjustments map[string]map[string]float64 `json:"medication_adjustments"`

	// Version increases monotonically on every persisted save.
	Version int `json:"version"`
}

// DefaultWeightTable returns the documented default parameter set for
// sleep-support formulation. Installed and persisted on first load.
func DefaultWeightTable() *WeightTable {
	return &WeightTable{
		Minerals: map[string]*MineralWeights{
			Magnesium: {
				BaseDose: 300,
				AgeMultipliers: map[string]float64{
					AgeBucket18To30: 1.0,
					AgeBucket31To50: 1.1,
					AgeBucket51To70: 1.2,
					AgeBucket70Plus: 1.25,
				},
				SexMultipliers: map[string]float64{
					SexMale:   1.0,
					SexFemale: 1.15,
				},
				WeightFactor: 1.5,
				IssueAdjustments: map[string]float64{
					IssueTroubleFallingAsleep: 100,
					IssueFrequentWaking:       75,
					IssueEarlyWaking:          50,
					IssueRestlessSleep:        75,
				},
				GapFillFraction: 0.7,
				MaxDose:         500,
				Form:            "glycinate",
			},
			Calcium: {
				BaseDose: 200,
				AgeMultipliers: map[string]float64{
					AgeBucket18To30: 1.0,
					AgeBucket31To50: 1.1,
					AgeBucket51To70: 1.3,
					AgeBucket70Plus: 1.4,
				},
				SexMultipliers: map[string]float64{
					SexMale:   1.0,
					SexFemale: 1.2,
				},
				IssueAdjustments: map[string]float64{},
				GapFillFraction:  0.3,
				MaxDose:          400,
				Form:             "citrate",
			},
			Potassium: {
				BaseDose: 200,
				AgeMultipliers: map[string]float64{
					AgeBucket18To30: 1.0,
					AgeBucket31To50: 1.0,
					AgeBucket51To70: 1.1,
					AgeBucket70Plus: 1.15,
				},
				SexMultipliers: map[string]float64{
					SexMale:   1.1,
					SexFemale: 1.0,
				},
				IssueAdjustments: map[string]float64{
					IssueRestlessSleep: 50,
				},
				GapFillFraction: 0.4,
				MaxDose:         300,
				Form:            "citrate",
			},
			Sodium: {
				BaseDose: 100,
				AgeMultipliers: map[string]float64{
					AgeBucket18To30: 1.0,
					AgeBucket31To50: 0.9,
					AgeBucket51To70: 0.8,
					AgeBucket70Plus: 0.7,
				},
				SexMultipliers: map[string]float64{
					SexMale:   1.0,
					SexFemale: 0.9,
				},
				IssueAdjustments: map[string]float64{},
				MaxDose:          200,
				Form:             "citrate",
			},
		},
		Interactions: Interactions{
			MgCaTarget: 2.0,
			KNaTarget:  2.5,
		},
		MedicationAdjustments: map[string]map[string]float64{
			MedDiuretics: {
				Magnesium: 1.2,
				Potassium: 1.3,
			},
			MedBloodPressure: {
				Sodium: 0.7,
			},
			MedThyroid: {
				Calcium: 0.8,
			},
		},
		Version: 0,
	}
}

// Clone returns a deep copy sharing no mutable state with the
// receiver. Snapshot/restore in the improvement loop relies on this
// being aliasing-free.
func (t *WeightTable) Clone() *WeightTable {
	clone := &WeightTable{
		Minerals:              make(map[string]*MineralWeights, len(t.Minerals)),
		Interactions:          t.Interactions,
		MedicationAdjustments: make(map[string]map[string]float64, len(t.MedicationAdjustments)),
		Version:               t.Version,
	}
	for name, mw := range t.Minerals {
		c := *mw
		c.AgeMultipliers = cloneFloatMap(mw.AgeMultipliers)
		c.SexMultipliers = cloneFloatMap(mw.SexMultipliers)
		c.IssueAdjustments = cloneFloatMap(mw.IssueAdjustments)
		clone.Minerals[name] = &c
	}
	for med, factors := range t.MedicationAdjustments {
		clone.MedicationAdjustments[med] = cloneFloatMap(factors)
	}
	return clone
}

// Equal reports exact equality of every field, version included.
func (t *WeightTable) Equal(other *WeightTable) bool {
	if t == nil || other == nil {
		return t == other
	}
	return reflect.DeepEqual(t, other)
}

func cloneFloatMap(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	c := make(map[string]float64, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
