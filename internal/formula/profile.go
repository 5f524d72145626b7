package formula

// Mineral name constants. Keys into WeightTable.Minerals, Profile
// intake and Recommendation doses.
const (
	Magnesium = "magnesium"
	Calcium   = "calcium"
	Potassium = "potassium"
	Sodium    = "sodium"
)

// Minerals lists all minerals in aggregation-weight order
// (primary first).
var Minerals = []string{Magnesium, Calcium, Potassium, Sodium}

// Sex values recognized in Profile.Sex.
const (
	SexMale   = "male"
	SexFemale = "female"
)

// Sleep issue tags recognized by the magnesium issue adjustments.
// Unrecognized tags are silently ignored.
const (
	IssueTroubleFallingAsleep = "trouble_falling_asleep"
	IssueFrequentWaking       = "frequent_waking"
	IssueEarlyWaking          = "early_waking"
	IssueRestlessSleep        = "restless_sleep"
)

// Medication tags recognized by the medication adjustment sub-table.
const (
	MedDiuretics     = "diuretics"
	MedBloodPressure = "blood_pressure_meds"
	MedThyroid       = "thyroid_meds"
)

// lbsPerKg converts pounds to kilograms.
const lbsPerKg = 0.453592

// Profile describes one test subject. Immutable once constructed;
// the engine and evaluator only read it.
type Profile struct {
	Name        string             `json:"name"`
	Age         int                `json:"age"`
	Sex         string             `json:"sex"`
	WeightLbs   float64            `json:"weight_lbs"`
	SleepIssues []string           `json:"sleep_issues"`
	Intake      map[string]float64 `json:"intake"` // mg/day current dietary intake per mineral
	Medications []string           `json:"medications"`
}

// WeightKg returns the subject's body weight in kilograms.
func (p Profile) WeightKg() float64 {
	return p.WeightLbs * lbsPerKg
}

// HasIssue reports whether the profile carries the given sleep issue tag.
func (p Profile) HasIssue(tag string) bool {
	for _, issue := range p.SleepIssues {
		if issue == tag {
			return true
		}
	}
	return false
}
