// Package modbushttp tunnels Modbus RTU frames over HTTP so the power relay
// box can live on a machine other than the one running the daemon.
package modbushttp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/goburrow/modbus"
)

// SendResponse is the JSON body returned by the bridge for each ADU exchange.
type SendResponse struct {
	ADUResponse []byte
	Error       string
}

// Client implements modbus.ClientHandler by POSTing each request ADU to a
// remote bridge. The embedded RTU handler supplies the framing methods; its
// serial port is never opened.
type Client struct {
	*modbus.RTUClientHandler

	baseURL string
}

func NewClient(baseURL string) *Client {
	handler := modbus.NewRTUClientHandler("/dev/null")
	handler.SlaveId = 1
	return &Client{
		RTUClientHandler: handler,
		baseURL:          baseURL,
	}
}

func (c *Client) Send(aduRequest []byte) ([]byte, error) {
	resp, err := http.Post(c.baseURL, "application/octet-stream", bytes.NewReader(aduRequest))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status code: %s\n%s", resp.Status, string(body))
	}
	var sendResponse SendResponse
	if err := json.Unmarshal(body, &sendResponse); err != nil {
		return nil, err
	}
	if sendResponse.Error != "" {
		err = errors.New(sendResponse.Error)
	}
	return sendResponse.ADUResponse, err
}

func (c *Client) Connect() error { return nil }

func (c *Client) Close() error { return nil }
