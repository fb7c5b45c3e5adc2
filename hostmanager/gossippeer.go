package hostmanager

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pkg/errors"
	"github.com/sabledatanetworks/pandanite-node/mempool"
	"github.com/sabledatanetworks/pandanite-node/types"
)

var _ mempool.GossipPeer = (*httpGossipPeer)(nil)

// httpGossipPeer adapts a peer address to mempool.GossipPeer, the
// narrow view the gossip loop needs to query height and push a
// transaction.
type httpGossipPeer struct {
	addr   string
	client *http.Client
}

func (p *httpGossipPeer) Address() string { return p.addr }

func (p *httpGossipPeer) BlockHeight() (uint64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), peerHTTPTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.addr+"/name", nil)
	if err != nil {
		return 0, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, errors.Errorf("name request returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	var parsed nameResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, err
	}
	return parsed.Height, nil
}

func (p *httpGossipPeer) SendTransaction(tx *types.Transaction) error {
	ctx, cancel := context.WithTimeout(context.Background(), peerHTTPTimeout)
	defer cancel()

	wire := wireTransaction{
		From:      tx.From.String(),
		To:        tx.To.String(),
		Amount:    uint64(tx.Amount),
		Fee:       uint64(tx.Fee),
		Timestamp: tx.Timestamp.Unix(),
		Nonce:     tx.Nonce,
		IsFee:     tx.IsFee,
	}
	if len(tx.SigningPublicKey) > 0 {
		wire.PublicKey = fmt.Sprintf("%x", []byte(tx.SigningPublicKey))
	}
	if len(tx.Signature) > 0 {
		wire.Signature = fmt.Sprintf("%x", tx.Signature)
	}

	payload, err := json.Marshal(wire)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.addr+"/transactions", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("peer %s rejected transaction with status %d", p.addr, resp.StatusCode)
	}
	return nil
}
