package security

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// LogEntry es el cuerpo enviado al endpoint de registro de accesos no autorizados.
type LogEntry struct {
	Route        string    `json:"route"`
	UserRole     string    `json:"userRole"`
	RequiredRole []string  `json:"requiredRole"`
	Timestamp    time.Time `json:"timestamp"`
	UserAgent    string    `json:"userAgent"`
}

// LogClient envía intentos denegados a un colaborador externo.
type LogClient interface {
	Send(ctx context.Context, entry LogEntry) error
}

// ErrLogNotConfigured indica que no hay endpoint de registro.
var ErrLogNotConfigured = errors.New("security log no configurado")

// NoopLogClient descarta los registros.
type NoopLogClient struct{}

// Send no hace nada.
func (NoopLogClient) Send(ctx context.Context, entry LogEntry) error {
	return nil
}

// HTTPLogClient hace POST JSON al endpoint configurado.
type HTTPLogClient struct {
	endpoint string
	client   *http.Client
	token    string
}

// NewHTTPLogClient crea el cliente remoto. Sin URL devuelve NoopLogClient.
func NewHTTPLogClient(endpoint, token string, timeout time.Duration) LogClient {
	if endpoint == "" {
		return NoopLogClient{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPLogClient{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: timeout},
	}
}

// Send publica la entrada. Cualquier respuesta fuera de 2xx es error.
func (c *HTTPLogClient) Send(ctx context.Context, entry LogEntry) error {
	if c == nil || c.endpoint == "" {
		return ErrLogNotConfigured
	}

	body, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("security log: status %d", resp.StatusCode)
	}
	return nil
}
