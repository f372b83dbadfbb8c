// Package github synchronizes repository metadata between two GitHub repositories.
// It computes the difference between the label and milestone sets of a source and a
// destination repository and converges the destination toward the source.
//
// The package includes:
// - APIClient interface and a go-github backed Client for the REST endpoints used
// - Pager, a lazy iterator that follows Link header pagination one page at a time
// - Collection, an ordered case-insensitive keyed mapping used as the diff substrate
// - Label and milestone reconcilers with Plan/Apply phases
// - OverdueLabeler for tagging open issues of past-due milestones
package github
