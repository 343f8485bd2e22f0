// Package shutdown coordinates graceful process shutdown.
//
// A Handler waits for SIGINT, SIGTERM or a programmatic Trigger and then
// runs the registered hooks in reverse order under one timeout. Hosts
// register DataRecovery.Close here so an in-flight backup can finish within
// the configured grace period.
package shutdown
