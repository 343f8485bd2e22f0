// Package domain defines the error taxonomy shared by the recovery store.
//
// Every failure that crosses a package boundary of the recovery store is a
// *DomainError carrying a stable code. Callers match on the sentinel values
// with errors.Is, which compares codes only, so a detailed copy produced by
// WithDetails or WithCause still matches its sentinel.
//
// Code format: RC-<AREA>-<NNNN>, where the last four digits follow HTTP-like
// classes (4xxx caller or data problem, 5xxx environment failure).
package domain
