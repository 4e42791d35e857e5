package provider

import (
	"errors"
	"net"
	"net/http"
	"time"

	"shop-service/internal/models"
	"shop-service/internal/util"
)

const defaultTimeout = 10 * time.Second

func httpClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// retryableStatus reports a response the provider may answer differently on retry
func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// notSent reports a transport error raised before any byte reached the provider
func notSent(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func unavailable(name models.ProviderName, operation string, err error) *UnavailableError {
	return &UnavailableError{
		Provider:  name,
		Operation: operation,
		NotSent:   notSent(err),
		Err:       err,
	}
}

// observe records the duration of one provider call under its outcome
func observe(name models.ProviderName, operation string, start time.Time, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, models.ErrProviderRejected):
		outcome = "rejected"
	case errors.Is(err, models.ErrProviderUnavailable):
		outcome = "unavailable"
	default:
		outcome = "error"
	}
	util.ProviderRequestDuration.WithLabelValues(string(name), operation, outcome).
		Observe(time.Since(start).Seconds())
}
