// Package scoring implements the online lead scoring engine.
//
// For every scoring call the engine recomputes a feature vector from the
// lead's stored attributes and the wall clock, folds each feature into its
// running Welford statistic, and combines z-scored / cyclical transforms
// under adaptive per-feature weights. The weighted sum is squashed through a
// logistic curve into a 0-100 score, which maps onto one of five segments.
//
// Weights adapt from observed conversions (small multiplicative nudges,
// clamped) and from periodic retraining over accumulated feature variance.
// All engine state is guarded by one mutex held for the whole logical
// operation and snapshotted after each mutating call.
package scoring
