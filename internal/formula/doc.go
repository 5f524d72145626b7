// Package formula computes personalized mineral dose recommendations
// from a tunable weight table.
//
// The package has three parts:
//
//   - Profile: immutable subject attributes (age, sex, body weight,
//     sleep issues, dietary intake, medications).
//   - WeightTable: the mutable, versioned parameter set driving dose
//     calculation. Owned by Engine; mutated only through the adjuster
//     and the improvement loop's revert step.
//   - Engine: deterministic Calculate(profile) mapping a profile plus
//     the current weight table to a Recommendation.
//
// Calculation order per mineral: base dose, age-bucket multiplier, sex
// multiplier, body-weight increment (magnesium only), sleep-issue
// additive adjustments, dietary gap fill, medication factors, clamp to
// the mineral's maximum. Cross-mineral ratio corrections run after all
// four minerals are computed independently; doses are re-clamped after
// each correction.
//
// Store persists the weight table as a versioned JSONB row in
// PostgreSQL. Load installs the documented defaults on first use.
package formula
