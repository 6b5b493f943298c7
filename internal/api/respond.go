package api

import (
	"encoding/json"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// ErrorResponse — единый формат ошибки API.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.WithError(err).Warn("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// respondDomainError переводит классификацию доменной ошибки в HTTP-статус.
// Сообщение клиенту — текст ошибки; детали остаются в логах сервиса.
func respondDomainError(w http.ResponseWriter, err error) {
	kind := domain.Classify(err)

	var status int
	switch kind {
	case domain.ErrorKindValidation:
		status = http.StatusBadRequest
	case domain.ErrorKindNotFound:
		status = http.StatusNotFound
	case domain.ErrorKindNetwork:
		status = http.StatusBadGateway
	case domain.ErrorKindGateway:
		status = http.StatusPaymentRequired
	case domain.ErrorKindConcurrency:
		status = http.StatusConflict
	case domain.ErrorKindOrderRecording:
		// Платёж захвачен, но заказ не записан: клиент не должен платить повторно.
		status = http.StatusInternalServerError
	default:
		status = http.StatusInternalServerError
	}

	respondError(w, status, string(kind), err.Error())
}
