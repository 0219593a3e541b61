// SPDX-License-Identifier: Apache-2.0

package domain

// Message is one outbound email handed to a dispatcher.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	// Tags are free-form correlation values forwarded to the provider.
	Tags map[string]string `json:"tags,omitempty"`
}
