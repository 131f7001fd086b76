// Package audit records control actions taken against the printer.
//
// Every pause, resume, LED change and print submission made through the
// bot or the HTTP API is written to the audit_logs table together with the
// acting user and the outcome. Access denials are recorded as well.
//
// The Recorder wraps a Repository for call sites that must not fail
// because auditing did: write errors are logged and dropped.
package audit
