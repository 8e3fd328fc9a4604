// Command mock-backend runs a deterministic Chat Completions server for
// manual testing without a real model. It inspects the prompt to decide
// which pipeline stage is being asked for and returns a matching JSON
// payload, deliberately dressed up with the kinds of noise real models
// produce (markdown fences, leading prose) so the extraction path gets
// exercised end to end.
//
// Configuration:
//
//	MOCK_PORT  - Listen port (default: 9090)
//	MOCK_NOISE - Output dressing: "clean", "fenced", "prose", or
//	             "broken" (default: "fenced")
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

func main() {
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9090"
	}
	noise := os.Getenv("MOCK_NOISE")
	if noise == "" {
		noise = "fenced"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", makeHandler(noise))
	mux.HandleFunc("GET /v1/models", handleModels)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	srv := &http.Server{Addr: ":" + port, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock backend starting", "port", port, "noise", noise)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock backend failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock backend shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

// --- Request types ---

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// --- Response types ---

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int     `json:"index"`
	Message      chatMsg `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type chatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// --- Handler ---

func makeHandler(noise string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":{"message":"invalid request","type":"invalid_request_error"}}`, http.StatusBadRequest)
			return
		}

		payload := classifyStage(&req)
		content := dress(payload, noise)

		resp := chatResponse{
			ID:     "chatcmpl-mock",
			Object: "chat.completion",
			Model:  req.Model,
			Choices: []chatChoice{
				{
					Index:        0,
					Message:      chatMsg{Role: "assistant", Content: content},
					FinishReason: "stop",
				},
			},
			Usage: chatUsage{
				PromptTokens:     promptLength(&req) / 4,
				CompletionTokens: len(content) / 4,
				TotalTokens:      (promptLength(&req) + len(content)) / 4,
			},
		}
		if resp.Model == "" {
			resp.Model = "mock-model"
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

// classifyStage inspects the prompt text to decide which stage payload
// to return. The markers match the opening lines of the built-in prompt
// templates.
func classifyStage(req *chatRequest) string {
	prompt := lastUserText(req)

	switch {
	case hasImagePart(req):
		return `{"transcript": [{"speaker": "them", "text": "are we still on for saturday?"}, {"speaker": "me", "text": "let me check my calendar"}], "description": "a messaging app screenshot with two visible bubbles"}`
	case strings.Contains(prompt, "in two ways at once"):
		return `{"context": {"topic": "weekend plans", "tone": "casual", "summary": "Two friends are confirming a Saturday meetup."}, "scene": {"setting": "text conversation", "relationship": "friends", "phase": "making plans", "notes": "light back-and-forth"}}`
	case strings.Contains(prompt, "Analyze the following conversation"):
		return `{"topic": "weekend plans", "tone": "casual", "summary": "Two friends are confirming a Saturday meetup."}`
	case strings.Contains(prompt, "situational frame"):
		return `{"setting": "text conversation", "relationship": "friends", "phase": "making plans", "notes": "light back-and-forth"}`
	case strings.Contains(prompt, "Profile the counterpart"):
		return `{"style": "short and playful", "interests": ["food", "music"], "traits": ["direct", "warm"]}`
	case strings.Contains(prompt, "Classify one message"):
		return `{"index": 0, "intent": "invite", "sentiment": "positive"}`
	case strings.Contains(prompt, "Write a reply"):
		return `{"text": "count me in, what time works for you?", "alternatives": ["yes! saturday is perfect", "sure, where are we meeting?"]}`
	}
	return `{"text": "sounds good!", "alternatives": []}`
}

// dress wraps the JSON payload in model-typical noise. "broken" drops
// the closing brace so unrecoverable extraction paths can be tested.
func dress(payload, noise string) string {
	switch noise {
	case "clean":
		return payload
	case "prose":
		return "Sure! Here is the analysis you asked for:\n\n" + payload + "\n\nLet me know if you need anything else."
	case "broken":
		return "```json\n" + strings.TrimSuffix(strings.TrimSpace(payload), "}") + "\n```"
	default: // fenced
		return "```json\n" + payload + "\n```"
	}
}

// --- Models endpoint ---

func handleModels(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"object": "list",
		"data": []map[string]any{
			{"id": "mock-model", "object": "model", "owned_by": "wingman-mock"},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// --- Helpers ---

func lastUserText(req *chatRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role != "user" {
			continue
		}
		switch v := req.Messages[i].Content.(type) {
		case string:
			return v
		case []any:
			var sb strings.Builder
			for _, part := range v {
				if m, ok := part.(map[string]any); ok {
					if t, ok := m["type"].(string); ok && t == "text" {
						if text, ok := m["text"].(string); ok {
							sb.WriteString(text)
						}
					}
				}
			}
			return sb.String()
		}
	}
	return ""
}

func hasImagePart(req *chatRequest) bool {
	for _, msg := range req.Messages {
		parts, ok := msg.Content.([]any)
		if !ok {
			continue
		}
		for _, part := range parts {
			if m, ok := part.(map[string]any); ok {
				if t, ok := m["type"].(string); ok && t == "image_url" {
					return true
				}
			}
		}
	}
	return false
}

func promptLength(req *chatRequest) int {
	n := 0
	for _, m := range req.Messages {
		if s, ok := m.Content.(string); ok {
			n += len(s)
		}
	}
	return n
}
