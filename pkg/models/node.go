package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// NodeType is the closed set of node kinds a workflow graph may contain.
type NodeType string

const (
	NodeTypeTrigger   NodeType = "trigger"
	NodeTypeEmail     NodeType = "email"
	NodeTypeDelay     NodeType = "delay"
	NodeTypeCondition NodeType = "condition"
	NodeTypeAction    NodeType = "action"
	NodeTypeStop      NodeType = "stop"
	NodeTypeWebhook   NodeType = "webhook"
	NodeTypeSplit     NodeType = "split"
	NodeTypeNotify    NodeType = "notify"
	NodeTypeGoal      NodeType = "goal"
)

// NodeTypes lists every supported node type.
var NodeTypes = []NodeType{
	NodeTypeTrigger, NodeTypeEmail, NodeTypeDelay, NodeTypeCondition, NodeTypeAction,
	NodeTypeStop, NodeTypeWebhook, NodeTypeSplit, NodeTypeNotify, NodeTypeGoal,
}

var ErrUnknownNodeType = errors.New("unknown node type")

// Position is display-only editor metadata.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a typed step in a workflow graph. Data always holds a pointer to
// the variant matching Type.
type Node struct {
	ID       string   `json:"id"       validate:"required"`
	Type     NodeType `json:"type"     validate:"required"`
	Position Position `json:"position"`
	Data     NodeData `json:"data"`
}

// NodeData is the type-specific payload of a node.
type NodeData interface {
	NodeType() NodeType
}

type TriggerData struct{}

type EmailData struct {
	TemplateID  string `json:"template_id,omitempty"`
	Subject     string `json:"subject,omitempty"`
	HTMLContent string `json:"html_content,omitempty"`
	TextContent string `json:"text_content,omitempty"`
	FromName    string `json:"from_name,omitempty"`
	FromEmail   string `json:"from_email,omitempty"`
	ReplyTo     string `json:"reply_to,omitempty"`
	Priority    int    `json:"priority,omitempty"`
}

// DelayUnit is the unit of a delay node's value.
type DelayUnit string

const (
	DelayMinutes DelayUnit = "minutes"
	DelayHours   DelayUnit = "hours"
	DelayDays    DelayUnit = "days"
)

func (u DelayUnit) Valid() bool {
	return u == DelayMinutes || u == DelayHours || u == DelayDays
}

// Duration converts value units into a duration. Unknown units yield zero.
func (u DelayUnit) Duration(value int) time.Duration {
	switch u {
	case DelayMinutes:
		return time.Duration(value) * time.Minute
	case DelayHours:
		return time.Duration(value) * time.Hour
	case DelayDays:
		return time.Duration(value) * 24 * time.Hour
	default:
		return 0
	}
}

type DelayData struct {
	Value int       `json:"value"`
	Unit  DelayUnit `json:"unit"`
}

func (d DelayData) Duration() time.Duration {
	return d.Unit.Duration(d.Value)
}

// ConditionType names the predicate a condition node evaluates.
type ConditionType string

const (
	ConditionOpenedEmail      ConditionType = "opened_email"
	ConditionClickedLink      ConditionType = "clicked_link"
	ConditionHasTag           ConditionType = "has_tag"
	ConditionPurchasedProduct ConditionType = "purchased_product"
	ConditionExpression       ConditionType = "expression"
)

type ConditionData struct {
	ConditionType ConditionType `json:"condition_type"`
	Value         string        `json:"value,omitempty"`
}

// ActionType names the contact mutation an action node performs.
type ActionType string

const (
	ActionAddTag    ActionType = "add_tag"
	ActionRemoveTag ActionType = "remove_tag"
)

type ActionData struct {
	ActionType ActionType `json:"action_type"`
	Value      string     `json:"value"`
}

type StopData struct{}

type WebhookData struct {
	WebhookURL string `json:"webhook_url"`
}

type SplitData struct {
	SplitPercentage float64 `json:"split_percentage"`
}

type NotifyData struct {
	Subject string `json:"subject,omitempty"`
	Message string `json:"message,omitempty"`
}

type GoalData struct {
	GoalName string `json:"goal_name,omitempty"`
}

func (TriggerData) NodeType() NodeType   { return NodeTypeTrigger }
func (EmailData) NodeType() NodeType     { return NodeTypeEmail }
func (DelayData) NodeType() NodeType     { return NodeTypeDelay }
func (ConditionData) NodeType() NodeType { return NodeTypeCondition }
func (ActionData) NodeType() NodeType    { return NodeTypeAction }
func (StopData) NodeType() NodeType      { return NodeTypeStop }
func (WebhookData) NodeType() NodeType   { return NodeTypeWebhook }
func (SplitData) NodeType() NodeType     { return NodeTypeSplit }
func (NotifyData) NodeType() NodeType    { return NodeTypeNotify }
func (GoalData) NodeType() NodeType      { return NodeTypeGoal }

// NewNodeData returns an empty payload for the node type.
func NewNodeData(nodeType NodeType) (NodeData, error) {
	switch nodeType {
	case NodeTypeTrigger:
		return &TriggerData{}, nil
	case NodeTypeEmail:
		return &EmailData{}, nil
	case NodeTypeDelay:
		return &DelayData{}, nil
	case NodeTypeCondition:
		return &ConditionData{}, nil
	case NodeTypeAction:
		return &ActionData{}, nil
	case NodeTypeStop:
		return &StopData{}, nil
	case NodeTypeWebhook:
		return &WebhookData{}, nil
	case NodeTypeSplit:
		return &SplitData{}, nil
	case NodeTypeNotify:
		return &NotifyData{}, nil
	case NodeTypeGoal:
		return &GoalData{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownNodeType, nodeType)
	}
}

// UnmarshalJSON decodes the data payload into the variant selected by type,
// rejecting unknown node types.
func (n *Node) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID       string          `json:"id"`
		Type     NodeType        `json:"type"`
		Position Position        `json:"position"`
		Data     json.RawMessage `json:"data"`
	}

	err := json.Unmarshal(b, &raw)
	if err != nil {
		return err
	}

	data, err := NewNodeData(raw.Type)
	if err != nil {
		return fmt.Errorf("node %s: %w", raw.ID, err)
	}

	if len(raw.Data) > 0 && string(raw.Data) != "null" {
		err = json.Unmarshal(raw.Data, data)
		if err != nil {
			return fmt.Errorf("node %s: decoding %s data: %w", raw.ID, raw.Type, err)
		}
	}

	n.ID = raw.ID
	n.Type = raw.Type
	n.Position = raw.Position
	n.Data = data

	return nil
}

// Email returns the email payload, or nil when the node is of another type.
func (n *Node) Email() *EmailData {
	d, _ := n.Data.(*EmailData)

	return d
}

func (n *Node) Delay() *DelayData {
	d, _ := n.Data.(*DelayData)

	return d
}

func (n *Node) Condition() *ConditionData {
	d, _ := n.Data.(*ConditionData)

	return d
}

func (n *Node) Action() *ActionData {
	d, _ := n.Data.(*ActionData)

	return d
}

func (n *Node) Webhook() *WebhookData {
	d, _ := n.Data.(*WebhookData)

	return d
}

func (n *Node) Split() *SplitData {
	d, _ := n.Data.(*SplitData)

	return d
}

func (n *Node) Notify() *NotifyData {
	d, _ := n.Data.(*NotifyData)

	return d
}

func (n *Node) Goal() *GoalData {
	d, _ := n.Data.(*GoalData)

	return d
}

var ErrInvalidNodeData = errors.New("invalid node data")

// Validate checks that the payload matches the node type and carries the
// fields the type requires.
func (n *Node) Validate() error {
	if n.Data == nil {
		return fmt.Errorf("%w: node %s has no data", ErrInvalidNodeData, n.ID)
	}

	if n.Data.NodeType() != n.Type {
		return fmt.Errorf("%w: node %s of type %s carries %s data", ErrInvalidNodeData, n.ID, n.Type, n.Data.NodeType())
	}

	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: node %s: %s", ErrInvalidNodeData, n.ID, fmt.Sprintf(format, args...))
	}

	switch n.Type {
	case NodeTypeDelay:
		d := n.Delay()
		if d == nil || d.Value <= 0 || !d.Unit.Valid() {
			return fail("delay requires a positive value and a unit of minutes, hours or days")
		}
	case NodeTypeCondition:
		d := n.Condition()
		if d == nil {
			return fail("missing condition data")
		}

		switch d.ConditionType {
		case ConditionOpenedEmail, ConditionClickedLink:
		case ConditionHasTag, ConditionPurchasedProduct, ConditionExpression:
			if d.Value == "" {
				return fail("condition %s requires a value", d.ConditionType)
			}
		default:
			return fail("unknown condition type %q", d.ConditionType)
		}
	case NodeTypeAction:
		d := n.Action()
		if d == nil || (d.ActionType != ActionAddTag && d.ActionType != ActionRemoveTag) {
			return fail("action type must be add_tag or remove_tag")
		}

		if d.Value == "" {
			return fail("action requires a tag value")
		}
	case NodeTypeWebhook:
		d := n.Webhook()
		if d == nil || d.WebhookURL == "" {
			return fail("webhook requires a webhook_url")
		}
	case NodeTypeSplit:
		d := n.Split()
		if d == nil || d.SplitPercentage < 0 || d.SplitPercentage > 100 {
			return fail("split_percentage must be between 0 and 100")
		}
	case NodeTypeEmail, NodeTypeTrigger, NodeTypeStop, NodeTypeNotify, NodeTypeGoal:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownNodeType, n.Type)
	}

	return nil
}

// NewNode builds a node whose type is taken from its payload.
func NewNode(id string, data NodeData) *Node {
	return &Node{ID: id, Type: data.NodeType(), Data: data}
}
