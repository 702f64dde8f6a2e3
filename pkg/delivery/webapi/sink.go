package webapi

import (
	"github.com/labstack/echo/v4"
)

// echoSink adapts an echo response to the delivery engine's sink. Writes
// flush immediately so throttled transfers trickle to the client instead
// of sitting in the response buffer.
type echoSink struct {
	ctx echo.Context
}

func newEchoSink(ctx echo.Context) *echoSink {
	return &echoSink{ctx: ctx}
}

func (s *echoSink) SetHeader(key, value string) {
	s.ctx.Response().Header().Set(key, value)
}

func (s *echoSink) WriteStatus(status int) {
	s.ctx.Response().WriteHeader(status)
}

func (s *echoSink) Write(p []byte) (int, error) {
	n, err := s.ctx.Response().Write(p)
	if err == nil {
		s.ctx.Response().Flush()
	}

	return n, err
}
