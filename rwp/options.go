package rwp

import "log/slog"

// Option configures a Server.
type Option func(*Server)

// WithAuth sets the authenticator. Defaults to NoopAuthenticator.
func WithAuth(a Authenticator) Option {
	return func(s *Server) { s.auth = a }
}

// WithCodec sets the default codec for connections that do not
// negotiate a format.
func WithCodec(c Codec) Option {
	return func(s *Server) { s.defaultCodec = c }
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPath sets the base path for protocol endpoints. Defaults to "/rwp".
func WithPath(path string) Option {
	return func(s *Server) { s.basePath = path }
}
