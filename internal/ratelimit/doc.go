// Package ratelimit tracks a global and a per-endpoint minimum send
// interval, persisted so the limits hold across process restarts. Backend
// failures degrade to best-effort: the limiter logs and proceeds rather
// than failing a dispatch.
package ratelimit
