package llm

import "context"

// MockClient returns a fixed response, for tests.
type MockClient struct {
	Response *Response
	Err      error
	Prompts  []string
}

func (m *MockClient) Complete(_ context.Context, prompt string) (*Response, error) {
	m.Prompts = append(m.Prompts, prompt)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Response, nil
}
