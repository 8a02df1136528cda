package openai

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// endlessSSEServer streams chunks until the request context ends.
func endlessSSEServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for {
			select {
			case <-r.Context().Done():
				return
			default:
			}
			fmt.Fprint(w, "data: {\"id\":\"c1\",\"choices\":[{\"delta\":{\"content\":\"word \"}}]}\n\n")
			flusher.Flush()
			time.Sleep(2 * time.Millisecond)
		}
	}))
}

func TestStreamChatCompletion_CancelReleasesReader(t *testing.T) {
	server := endlessSSEServer(t)
	defer server.Close()

	client := NewClient("sk-test", WithBaseURL(server.URL))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := client.StreamChatCompletion(ctx, &ChatCompletionRequest{Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("StreamChatCompletion() error = %v", err)
	}
	if _, ok := <-stream; !ok {
		t.Fatal("stream closed before any chunk arrived")
	}

	cancel()

	// A disconnected consumer stops reading entirely. The reader must exit
	// and close the channel on its own, releasing the response body.
	time.Sleep(200 * time.Millisecond)
	select {
	case _, ok := <-stream:
		if ok {
			t.Fatal("reader still sending after cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream not closed after cancellation; reader goroutine leaked")
	}
}
