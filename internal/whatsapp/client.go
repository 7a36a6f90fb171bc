// Package whatsapp sends campaign messages through a paired WhatsApp
// multi-device session.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
)

var errNotConnected = errors.New("WhatsApp client is not connected")

// Config holds the session store location and whatsmeow log level
type Config struct {
	DSN      string
	LogLevel string
}

// Client implements worker.Transport on top of whatsmeow.
// The device session is kept in the same Postgres database as the campaigns.
type Client struct {
	container *sqlstore.Container
	wa        *whatsmeow.Client
	logger    *slog.Logger
}

// New opens the device store and prepares a client for the first stored device
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	container, err := sqlstore.New(ctx, "postgres", cfg.DSN, waLog.Stdout("Database", cfg.LogLevel, true))
	if err != nil {
		return nil, fmt.Errorf("failed to open WhatsApp session store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to load WhatsApp device: %w", err)
	}

	c := &Client{
		container: container,
		wa:        whatsmeow.NewClient(device, waLog.Stdout("Client", cfg.LogLevel, true)),
		logger:    logger,
	}
	c.wa.EnableAutoReconnect = true
	c.wa.AddEventHandler(c.handleEvent)

	return c, nil
}

// Connect connects to WhatsApp. An unpaired device logs QR codes until it is
// paired or ctx is done.
func (c *Client) Connect(ctx context.Context) error {
	if c.wa.Store.ID != nil {
		if err := c.wa.Connect(); err != nil {
			return fmt.Errorf("failed to connect to WhatsApp: %w", err)
		}
		return nil
	}

	qrChan, err := c.wa.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("failed to get QR channel: %w", err)
	}

	if err := c.wa.Connect(); err != nil {
		return fmt.Errorf("failed to connect to WhatsApp: %w", err)
	}

	go func() {
		for evt := range qrChan {
			if evt.Event == "code" {
				c.logger.Info("scan QR code to pair WhatsApp", slog.String("code", evt.Code))
				continue
			}
			c.logger.Info("WhatsApp pairing event", slog.String("event", evt.Event))
		}
	}()

	return nil
}

// IsRegistered asks WhatsApp whether the address belongs to an account
func (c *Client) IsRegistered(ctx context.Context, address string) (bool, error) {
	jid, err := parseAddress(address)
	if err != nil {
		return false, err
	}
	if !c.wa.IsConnected() {
		return false, errNotConnected
	}

	resp, err := c.wa.IsOnWhatsApp(ctx, []string{"+" + jid.User})
	if err != nil {
		return false, fmt.Errorf("failed to verify WhatsApp number: %w", err)
	}
	if len(resp) == 0 {
		return false, fmt.Errorf("unable to verify phone number %s", jid.User)
	}

	return resp[0].IsIn, nil
}

// Send delivers a plain text message and returns its WhatsApp message ID
func (c *Client) Send(ctx context.Context, address, text string) (string, error) {
	jid, err := parseAddress(address)
	if err != nil {
		return "", err
	}
	if !c.wa.IsConnected() {
		return "", errNotConnected
	}

	resp, err := c.wa.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}

	return string(resp.ID), nil
}

// Health reports whether the session is connected and logged in
func (c *Client) Health(_ context.Context) error {
	if !c.wa.IsConnected() {
		return errNotConnected
	}
	if !c.wa.IsLoggedIn() {
		return errors.New("WhatsApp session is not logged in")
	}
	return nil
}

// Close disconnects and closes the session store
func (c *Client) Close() error {
	c.wa.Disconnect()
	return c.container.Close()
}

func (c *Client) handleEvent(evt interface{}) {
	switch e := evt.(type) {
	case *events.Connected:
		c.logger.Info("WhatsApp connected")
	case *events.Disconnected:
		c.logger.Warn("WhatsApp disconnected")
	case *events.LoggedOut:
		c.logger.Error("WhatsApp session logged out", slog.String("reason", e.Reason.String()))
	case *events.PairSuccess:
		c.logger.Info("WhatsApp device paired", slog.String("jid", e.ID.String()))
	}
}

// parseAddress accepts only individual user addresses
func parseAddress(address string) (types.JID, error) {
	jid, err := types.ParseJID(address)
	if err != nil {
		return types.JID{}, fmt.Errorf("invalid WhatsApp address %q: %w", address, err)
	}
	if jid.Server != types.DefaultUserServer || jid.User == "" {
		return types.JID{}, fmt.Errorf("invalid WhatsApp address %q: not a user address", address)
	}
	return jid, nil
}
