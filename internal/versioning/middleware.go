package versioning

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
)

const (
	// AcceptVersionHeader lets a client pin the API version it expects.
	AcceptVersionHeader = "Accept-Version"
	// CurrentVersionHeader reports the version the server actually ran.
	CurrentVersionHeader = "X-Current-Version"
	// SupportedVersionsHeader advertises the accepted range.
	SupportedVersionsHeader = "X-Supported-Versions"
)

// Middleware stamps version headers on every response and rejects requests
// pinned to a version outside the supported window. Requests without the
// header get the current version.
func Middleware(logger *logrus.Logger) func(http.Handler) http.Handler {
	supportedRange := MinSupported.String() + " - " + Current.String()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(CurrentVersionHeader, Current.String())
			w.Header().Set(SupportedVersionsHeader, supportedRange)

			requested := r.Header.Get(AcceptVersionHeader)
			if requested == "" {
				next.ServeHTTP(w, r)
				return
			}

			version, err := Parse(requested)
			if err != nil {
				writeVersionError(w, http.StatusBadRequest, "invalid Accept-Version header")
				return
			}
			if !version.IsSupported() {
				logger.WithFields(logrus.Fields{
					"requested": version.String(),
					"supported": supportedRange,
				}).Warn("Rejected request for unsupported API version")
				writeVersionError(w, http.StatusNotAcceptable, "requested API version is not supported")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeVersionError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
