package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func newHandlerApp(f fixture) *fiber.App {
	h := NewHandler(f.svc)
	app := fiber.New()
	app.Post("/wallets", h.Deploy)
	app.Get("/wallets/:address", h.Get)
	app.Get("/wallets/:address/balance", h.Balance)
	app.Get("/wallets/:address/deposit-count", h.DepositCount)
	app.Get("/wallets/:address/deposits", h.Deposits)
	app.Post("/wallets/:address/send/:mechanism", h.Send)
	return app
}

func doRequest(t *testing.T, app *fiber.App, method, path string, body any) (int, string) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(raw)
}

func TestHandlerSendStatusMapping(t *testing.T) {
	f := deployWalletFixture(t, Options{OwnerOnly: true})
	other, err := f.svc.Deploy(context.Background(), f.addr2)
	require.NoError(t, err)
	f.deposit(t, f.owner, "1", nil)
	app := newHandlerApp(f)
	path := "/wallets/" + f.wallet.Address.Hex() + "/send/"

	cases := []struct {
		name      string
		mechanism string
		body      map[string]string
		status    int
		message   string
	}{
		{"insufficient", "call", map[string]string{"caller": f.owner.Hex(), "to": f.addr1.Hex(), "amount": "2"}, fiber.StatusBadRequest, "Not enough balance"},
		{"not owner", "call", map[string]string{"caller": f.addr1.Hex(), "to": f.addr1.Hex(), "amount": "1"}, fiber.StatusForbidden, "not owner of wallet"},
		{"stipend too small", "transfer", map[string]string{"caller": f.owner.Hex(), "to": other.Address.Hex(), "amount": "1"}, fiber.StatusUnprocessableEntity, "out of gas"},
		{"send reports failure", "send", map[string]string{"caller": f.owner.Hex(), "to": other.Address.Hex(), "amount": "1"}, fiber.StatusUnprocessableEntity, ErrSendRejected.Error()},
		{"unknown mechanism", "delegatecall", map[string]string{"caller": f.owner.Hex(), "to": f.addr1.Hex(), "amount": "1"}, fiber.StatusNotFound, ErrInvalidMechanism.Error()},
		{"bad amount", "call", map[string]string{"caller": f.owner.Hex(), "to": f.addr1.Hex(), "amount": "one"}, fiber.StatusBadRequest, "invalid value"},
		{"missing fields", "call", map[string]string{"amount": "1"}, fiber.StatusBadRequest, "Caller is required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := doRequest(t, app, fiber.MethodPost, path+tc.mechanism, tc.body)
			require.Equal(t, tc.status, status, body)
			require.Contains(t, body, tc.message)
		})
	}

	status, body := doRequest(t, app, fiber.MethodGet, "/wallets/"+f.wallet.Address.Hex()+"/balance", nil)
	require.Equal(t, fiber.StatusOK, status)
	require.Contains(t, body, `"balance_ether":"1"`)
}

func TestHandlerDeployAndReads(t *testing.T) {
	f := deployWalletFixture(t, Options{})
	app := newHandlerApp(f)

	status, body := doRequest(t, app, fiber.MethodPost, "/wallets", map[string]string{"owner": f.addr1.Hex()})
	require.Equal(t, fiber.StatusCreated, status, body)

	var created walletResponse
	require.NoError(t, json.Unmarshal([]byte(body), &created))
	require.Equal(t, f.addr1.Hex(), created.Owner)
	require.Zero(t, created.DepositCount)

	status, body = doRequest(t, app, fiber.MethodGet, "/wallets/"+created.Address+"/deposit-count", nil)
	require.Equal(t, fiber.StatusOK, status)
	require.Contains(t, body, `"deposit_count":0`)

	status, _ = doRequest(t, app, fiber.MethodPost, "/wallets", map[string]string{"owner": "nobody"})
	require.Equal(t, fiber.StatusBadRequest, status)

	status, _ = doRequest(t, app, fiber.MethodGet, "/wallets/0x1234/balance", nil)
	require.Equal(t, fiber.StatusBadRequest, status)

	status, _ = doRequest(t, app, fiber.MethodGet, "/wallets/"+f.addr1.Hex()+"/deposits", nil)
	require.Equal(t, fiber.StatusNotFound, status)
}
