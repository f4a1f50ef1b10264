// Package pubsub wraps the Pub/Sub v2 client for the two sides of the event
// bus: the outbox publisher writing topics and the worker reading
// subscriptions.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/orderdesk-backend/pkg/config"
	"github.com/angelmondragon/orderdesk-backend/pkg/logger"
)

// Role selects which resources a process depends on and therefore verifies
// at startup and on every health ping.
type Role int

const (
	RolePublisher Role = iota + 1
	RoleConsumer
)

func (r Role) String() string {
	switch r {
	case RolePublisher:
		return "publisher"
	case RoleConsumer:
		return "consumer"
	default:
		return "unknown"
	}
}

var errProjectIDRequired = errors.New("gcp project id is required")

type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
	role      Role
}

// NewClient connects and fails fast when a topic or subscription the role
// needs is missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, role Role, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	if role != RolePublisher && role != RoleConsumer {
		return nil, fmt.Errorf("unknown pubsub role %d", role)
	}

	psClient, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{client: psClient, projectID: projectID, cfg: cfg, role: role}
	if err := c.Ping(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "role", role.String()), "pubsub client initialized")
	}
	return c, nil
}

// Ping checks that every resource the role depends on still exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	names, err := c.requiredResources()
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := c.exists(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) requiredResources() ([]string, error) {
	var kind string
	var ids []string
	switch c.role {
	case RolePublisher:
		kind, ids = "topics", []string{c.cfg.TasksTopic, c.cfg.NotificationTopic}
	case RoleConsumer:
		kind, ids = "subscriptions", []string{c.cfg.TasksSubscription, c.cfg.NotificationSubscription}
	}
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if name := resourceName(c.projectID, kind, id); name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no pubsub %s configured for %s", kind, c.role)
	}
	return names, nil
}

func (c *Client) exists(ctx context.Context, name string) error {
	var err error
	if strings.Contains(name, "/topics/") {
		_, err = c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: name})
	} else {
		_, err = c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: name})
	}
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s does not exist", name)
	default:
		return fmt.Errorf("checking %s: %w", name, err)
	}
}

// Subscriber returns a receive handle with the configured flow control, or
// nil when name is blank.
func (c *Client) Subscriber(name string) *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	full := resourceName(c.projectID, "subscriptions", name)
	if full == "" {
		return nil
	}
	sub := c.client.Subscriber(full)
	if c.cfg.MaxOutstandingMessages > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = c.cfg.MaxOutstandingMessages
	}
	return sub
}

func (c *Client) TasksSubscription() *pubsub.Subscriber {
	return c.Subscriber(c.cfg.TasksSubscription)
}

func (c *Client) NotificationSubscription() *pubsub.Subscriber {
	return c.Subscriber(c.cfg.NotificationSubscription)
}

// Publisher returns a publish handle for a topic id or full resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	full := resourceName(c.projectID, "topics", name)
	if full == "" {
		return nil
	}
	return c.client.Publisher(full)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// resourceName expands an id to projects/<project>/<kind>/<id>. Names that are
// already fully qualified pass through.
func resourceName(projectID, kind, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+kind+"/") {
		return name
	}
	if projectID == "" {
		return ""
	}
	return "projects/" + projectID + "/" + kind + "/" + name
}
