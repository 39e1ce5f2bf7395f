package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Processor описывает внешний платёжный процессор. Детали интеграции
// скрыты за интерфейсом: лайфцикл задачи знает только про идентификатор
// интента и переходы статусов.
type Processor interface {
	CreateIntent(ctx context.Context, taskID uuid.UUID, amount, commission float64) (string, error)
}

// HTTPProcessor создаёт платёжные интенты через REST API процессора.
type HTTPProcessor struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPProcessor создаёт клиент платёжного процессора.
func NewHTTPProcessor(baseURL, apiKey string) *HTTPProcessor {
	return &HTTPProcessor{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type createIntentRequest struct {
	TaskID     string  `json:"task_id"`
	Amount     float64 `json:"amount"`
	Commission float64 `json:"commission"`
	Currency   string  `json:"currency"`
}

type createIntentResponse struct {
	ID string `json:"id"`
}

// CreateIntent создаёт платёжный интент и возвращает его идентификатор.
func (p *HTTPProcessor) CreateIntent(ctx context.Context, taskID uuid.UUID, amount, commission float64) (string, error) {
	if p.baseURL == "" {
		return "", fmt.Errorf("payment: URL процессора не настроен")
	}

	payload, err := json.Marshal(createIntentRequest{
		TaskID:     taskID.String(),
		Amount:     amount,
		Commission: commission,
		Currency:   "rub",
	})
	if err != nil {
		return "", fmt.Errorf("payment: не удалось сериализовать запрос: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/payment_intents", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("payment: не удалось собрать запрос: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("payment: запрос к процессору не удался: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("payment: процессор вернул статус %d", resp.StatusCode)
	}

	var parsed createIntentResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("payment: не удалось разобрать ответ: %w", err)
	}
	if parsed.ID == "" {
		return "", fmt.Errorf("payment: процессор не вернул идентификатор интента")
	}

	return parsed.ID, nil
}
