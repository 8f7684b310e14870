package obs

import "go.uber.org/zap"

// Common field constructors so every component logs the same keys.

func RequestID(v string) zap.Field   { return zap.String("request_id", v) }
func Method(v string) zap.Field      { return zap.String("method", v) }
func Path(v string) zap.Field        { return zap.String("path", v) }
func Status(v int) zap.Field         { return zap.Int("status", v) }
func Bytes(v int) zap.Field          { return zap.Int("bytes", v) }
func DurationMs(v int64) zap.Field   { return zap.Int64("duration_ms", v) }
func ClientIP(v string) zap.Field    { return zap.String("client_ip", v) }
func UserAgent(v string) zap.Field   { return zap.String("user_agent", v) }
func Portal(v string) zap.Field      { return zap.String("portal", v) }
func PrincipalID(v string) zap.Field { return zap.String("principal_id", v) }
func SessionID(v string) zap.Field   { return zap.String("session_id", v) }
func Activity(v string) zap.Field    { return zap.String("activity", v) }
