package formula

import (
	"fmt"
	"log/slog"
	"math"
)

// ratioSentinel stands in for a ratio whose denominator dose is zero.
// Corrections are skipped when the sentinel appears.
const ratioSentinel = 999.0

// ratioTolerance is the relative deviation from a target ratio beyond
// which a correction fires.
const ratioTolerance = 0.2

// weightThresholdKg is the body weight above which the magnesium
// weight increment applies.
const weightThresholdKg = 70.0

// Recommendation is the output of Engine.Calculate. Immutable once
// produced; a new one is computed whenever the weight table changes.
type Recommendation struct {
	Doses          map[string]float64 `json:"doses"` // mg, whole numbers
	Forms          map[string]string  `json:"forms"`
	Rationale      []string           `json:"rationale"`
	WeightsVersion int                `json:"weights_version"`
}

// Dose returns the recommended dose for a mineral, 0 if absent.
func (r Recommendation) Dose(mineral string) float64 {
	return r.Doses[mineral]
}

// Engine computes dose recommendations from a profile and the current
// weight table. The table is owned by the engine; Weights/SetWeights
// are the adjuster's and the improvement loop's access path.
type Engine struct {
	weights *WeightTable
	logger  *slog.Logger
}

// NewEngine creates an Engine over the given weight table.
// A nil logger falls back to slog.Default().
func NewEngine(weights *WeightTable, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{weights: weights, logger: logger}
}

// Weights returns the engine's current weight table. Callers must not
// retain the pointer across a SetWeights.
func (e *Engine) Weights() *WeightTable {
	return e.weights
}

// SetWeights replaces the engine's weight table. Used by the
// improvement loop to restore a snapshot on revert.
func (e *Engine) SetWeights(w *WeightTable) {
	e.weights = w
}

// Calculate computes a dose recommendation for the profile. Pure given
// the current weight table: it reads the table and profile, mutates
// neither.
func (e *Engine) Calculate(profile Profile) Recommendation {
	doses := make(map[string]float64, len(Minerals))
	forms := make(map[string]string, len(Minerals))
	var rationale []string

	for _, mineral := range Minerals {
		mw, ok := e.weights.Minerals[mineral]
		if !ok {
			continue
		}
		dose, notes := e.mineralDose(mineral, mw, profile)
		doses[mineral] = dose
		forms[mineral] = mw.Form
		rationale = append(rationale, notes...)
	}

	rationale = append(rationale, e.applyRatioCorrections(doses)...)

	// Whole-mg doses in the final output.
	for mineral, dose := range doses {
		doses[mineral] = math.Round(dose)
	}

	e.logger.Debug("calculated recommendation",
		"weights_version", e.weights.Version,
		"magnesium_mg", doses[Magnesium],
		"calcium_mg", doses[Calcium],
		"potassium_mg", doses[Potassium],
		"sodium_mg", doses[Sodium])

	return Recommendation{
		Doses:          doses,
		Forms:          forms,
		Rationale:      rationale,
		WeightsVersion: e.weights.Version,
	}
}

// mineralDose computes one mineral's dose before ratio corrections.
func (e *Engine) mineralDose(mineral string, mw *MineralWeights, profile Profile) (float64, []string) {
	var notes []string

	dose := mw.BaseDose

	bucket := AgeBucketFor(profile.Age)
	if mult, ok := mw.AgeMultipliers[bucket]; ok {
		dose *= mult
		if mult != 1.0 {
			notes = append(notes, fmt.Sprintf("%s: age %s multiplier %.2f", mineral, bucket, mult))
		}
	}

	if mult, ok := mw.SexMultipliers[profile.Sex]; ok {
		dose *= mult
		if mult != 1.0 {
			notes = append(notes, fmt.Sprintf("%s: %s multiplier %.2f", mineral, profile.Sex, mult))
		}
	}

	if mw.WeightFactor > 0 {
		if kg := profile.WeightKg(); kg > weightThresholdKg {
			increment := mw.WeightFactor * (kg - weightThresholdKg)
			dose += increment
			notes = append(notes, fmt.Sprintf("%s: +%.0fmg for body weight above %.0fkg", mineral, increment, weightThresholdKg))
		}
	}

	// Unrecognized issue tags have no entry and are ignored.
	for _, issue := range profile.SleepIssues {
		if adj, ok := mw.IssueAdjustments[issue]; ok {
			dose += adj
			notes = append(notes, fmt.Sprintf("%s: +%.0fmg for %s", mineral, adj, issue))
		}
	}

	if mw.GapFillFraction > 0 {
		reference := referenceIntake(mineral, profile)
		if shortfall := reference - profile.Intake[mineral]; shortfall > 0 {
			fill := mw.GapFillFraction * shortfall
			dose += fill
			notes = append(notes, fmt.Sprintf("%s: +%.0fmg dietary gap fill (intake %.0f of %.0fmg reference)",
				mineral, fill, profile.Intake[mineral], reference))
		}
	}

	// Unrecognized medication tags have no entry and are ignored.
	for _, med := range profile.Medications {
		if factors, ok := e.weights.MedicationAdjustments[med]; ok {
			if factor, ok := factors[mineral]; ok {
				dose *= factor
				notes = append(notes, fmt.Sprintf("%s: ×%.2f for %s", mineral, factor, med))
			}
		}
	}

	return clampDose(dose, mw.MaxDose), notes
}

// applyRatioCorrections applies the two cross-mineral corrections in
// fixed order and re-clamps the corrected doses. The Mg:Ca correction
// recomputes calcium from magnesium in both directions; the K:Na
// correction only lowers sodium when it is too high relative to
// potassium.
func (e *Engine) applyRatioCorrections(doses map[string]float64) []string {
	var notes []string
	inter := e.weights.Interactions

	if inter.MgCaTarget > 0 {
		ratio := safeRatio(doses[Magnesium], doses[Calcium])
		if ratio != ratioSentinel && outsideTolerance(ratio, inter.MgCaTarget) {
			corrected := doses[Magnesium] / inter.MgCaTarget
			if mw, ok := e.weights.Minerals[Calcium]; ok {
				corrected = clampDose(corrected, mw.MaxDose)
			}
			doses[Calcium] = corrected
			notes = append(notes, fmt.Sprintf("calcium adjusted to %.0fmg for %.1f:1 magnesium:calcium ratio",
				corrected, inter.MgCaTarget))
		}
	}

	if inter.KNaTarget > 0 {
		ratio := safeRatio(doses[Potassium], doses[Sodium])
		// Asymmetric: correct only when sodium is high (ratio low).
		if ratio != ratioSentinel && ratio < inter.KNaTarget*(1-ratioTolerance) {
			corrected := doses[Potassium] / inter.KNaTarget
			if mw, ok := e.weights.Minerals[Sodium]; ok {
				corrected = clampDose(corrected, mw.MaxDose)
			}
			doses[Sodium] = corrected
			notes = append(notes, fmt.Sprintf("sodium lowered to %.0fmg for %.1f:1 potassium:sodium balance",
				corrected, inter.KNaTarget))
		}
	}

	return notes
}

// safeRatio returns num/den, or the sentinel when den is zero.
func safeRatio(num, den float64) float64 {
	if den == 0 {
		return ratioSentinel
	}
	return num / den
}

// outsideTolerance reports whether ratio deviates from target by more
// than the ±20% tolerance band.
func outsideTolerance(ratio, target float64) bool {
	return ratio < target*(1-ratioTolerance) || ratio > target*(1+ratioTolerance)
}

// clampDose bounds a dose to [0, maxDose]. A zero maxDose means no
// upper bound.
func clampDose(dose, maxDose float64) float64 {
	if dose < 0 {
		return 0
	}
	if maxDose > 0 && dose > maxDose {
		return maxDose
	}
	return dose
}

// referenceIntake returns the fixed reference daily intake used for
// dietary gap filling, distinguishing by sex and age.
func referenceIntake(mineral string, profile Profile) float64 {
	switch mineral {
	case Magnesium:
		if profile.Sex == SexFemale {
			return 350
		}
		return 400
	case Calcium:
		if profile.Age >= 50 {
			return 1200
		}
		return 1000
	case Potassium:
		if profile.Sex == SexFemale {
			return 2600
		}
		return 3400
	default:
		return 0
	}
}
