// Package middleware provides HTTP middleware for the lottery API
package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/R3E-Network/lottery_engine/internal/httputil"
	"github.com/R3E-Network/lottery_engine/internal/settlement"
	"github.com/R3E-Network/lottery_engine/pkg/logger"
)

// Request headers read by AuthMiddleware.
const (
	HeaderNeoPublicKey = "X-Neo-PublicKey"
	HeaderNeoSignature = "X-Neo-Signature"
	HeaderNeoTimestamp = "X-Neo-Timestamp"
	HeaderCaller       = "X-Lottery-Caller"
)

type callerKey struct{}

// WithCaller stores the authenticated identity in ctx.
func WithCaller(ctx context.Context, id settlement.Identity) context.Context {
	return context.WithValue(ctx, callerKey{}, id)
}

// Caller returns the authenticated identity, if any.
func Caller(ctx context.Context) (settlement.Identity, bool) {
	id, ok := ctx.Value(callerKey{}).(settlement.Identity)
	return id, ok && id.Valid()
}

// TokenVerifier resolves a bearer token to an identity.
type TokenVerifier interface {
	Verify(token string) (settlement.Identity, error)
}

// SignatureVerifier resolves a signed request to an identity. The signature
// covers the request body.
type SignatureVerifier interface {
	Verify(publicKeyHex, signatureHex, method, path, timestamp string, body []byte) (settlement.Identity, error)
}

// maxSignedBody bounds the body read for signature checks.
const maxSignedBody = 1 << 20

// AuthOptions selects the accepted credentials. At least one should be set.
type AuthOptions struct {
	Tokens     TokenVerifier
	Signatures SignatureVerifier
	// TrustCallerHeader accepts X-Lottery-Caller as-is. Development only.
	TrustCallerHeader bool
}

// AuthMiddleware authenticates the caller and stores its identity in the
// request context.
type AuthMiddleware struct {
	opts      AuthOptions
	log       *logger.Logger
	skipPaths map[string]bool
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(opts AuthOptions, log *logger.Logger, skipPaths []string) *AuthMiddleware {
	skip := make(map[string]bool)
	for _, path := range skipPaths {
		skip[path] = true
	}
	return &AuthMiddleware{opts: opts, log: log, skipPaths: skip}
}

// Handler returns the middleware handler
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		id, method, err := m.authenticate(r)
		if err != nil {
			m.log.WithError(err).WithFields(map[string]interface{}{
				"path":   r.URL.Path,
				"method": r.Method,
			}).Warn("Authentication failed")
			httputil.Unauthorized(w, r, err.Error())
			return
		}

		m.log.WithFields(map[string]interface{}{
			"caller":      id,
			"auth_method": method,
		}).Debug("Authentication successful")
		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), id)))
	})
}

type authError string

func (e authError) Error() string { return string(e) }

func (m *AuthMiddleware) authenticate(r *http.Request) (settlement.Identity, string, error) {
	if header := r.Header.Get("Authorization"); header != "" && m.opts.Tokens != nil {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			return "", "", authError("invalid Authorization header format")
		}
		id, err := m.opts.Tokens.Verify(parts[1])
		return id, "jwt", err
	}

	if pub := r.Header.Get(HeaderNeoPublicKey); pub != "" && m.opts.Signatures != nil {
		body, err := readBody(r)
		if err != nil {
			return "", "", err
		}
		id, err := m.opts.Signatures.Verify(pub,
			r.Header.Get(HeaderNeoSignature), r.Method, r.URL.Path, r.Header.Get(HeaderNeoTimestamp), body)
		return id, "neo", err
	}

	if m.opts.TrustCallerHeader {
		if id := settlement.Identity(r.Header.Get(HeaderCaller)); id.Valid() {
			return id, "header", nil
		}
	}
	return "", "", authError("missing credentials")
}

// readBody drains r.Body and puts an identical reader back for the handler.
func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBody+1))
	r.Body.Close()
	if err != nil {
		return nil, authError("failed to read request body")
	}
	if len(body) > maxSignedBody {
		return nil, authError("request body too large to verify")
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}
