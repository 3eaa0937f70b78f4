// Package models defines the domain types shared by the download tracking subsystem.
//
// The package contains two categories of types:
//
// 1. Wire-facing types: what the external download service returns
//   - [JobSnapshot] : result of a single job status poll
//   - [CancelTarget] : job id or source link addressed by a cancel request
//
// 2. Canonical state: what every other package reasons about
//   - [Job] : one submitted download and its lifecycle [JobStatus]
//   - [Frame] : a normalized progress update from either feed
//   - [OverallProgress] : aggregate counters for the active session
//   - [QueueEntry] : per-song progress row
//   - [PanelState] : show/hide/peek flags of the progress panel
//
// Raw payloads never leave the services package; they are normalized into [Frame] at the feed boundary.
package models
