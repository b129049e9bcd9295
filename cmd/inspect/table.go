package main

import (
	"dm-lab/domain/messaging"
	"dm-lab/repositories"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

const maxCellWidth = 48

type rowFunc func(key string, value []byte) ([]string, error)

var headers = map[repositories.Collection][]string{
	repositories.CollectionConversations: {"ID", "Group", "Name", "Created by", "Updated"},
	repositories.CollectionParticipants:  {"Conversation", "User", "Role", "Status", "Left", "Muted"},
	repositories.CollectionMessages:      {"Conversation", "Seq", "Sender", "Content", "Created", "State"},
	repositories.CollectionProfiles:      {"User", "Display name", "Visibility", "Friend requests"},
	repositories.CollectionBlocks:        {"Blocker", "Blocked"},
	repositories.CollectionNotifications: {"User", "Type", "Payload", "Created"},
}

var rows = map[repositories.Collection]rowFunc{
	repositories.CollectionConversations: func(_ string, value []byte) ([]string, error) {
		var c messaging.Conversation
		if err := json.Unmarshal(value, &c); err != nil {
			return nil, err
		}
		name := ""
		if c.Name != nil {
			name = *c.Name
		}
		return []string{c.ID.String(), strconv.FormatBool(c.IsGroup), name, c.CreatedBy, stamp(c.UpdatedAt)}, nil
	},
	repositories.CollectionParticipants: func(_ string, value []byte) ([]string, error) {
		var p messaging.Participant
		if err := json.Unmarshal(value, &p); err != nil {
			return nil, err
		}
		left := ""
		if p.LeftAt != nil {
			left = stamp(*p.LeftAt)
		}
		return []string{p.ConversationID.String(), p.UserID, string(p.Role), string(p.Status), left, strconv.FormatBool(p.IsMuted)}, nil
	},
	repositories.CollectionMessages: func(_ string, value []byte) ([]string, error) {
		var m messaging.Message
		if err := json.Unmarshal(value, &m); err != nil {
			return nil, err
		}
		state := color.Green.Sprint("live")
		switch {
		case m.IsDeleted():
			state = color.Red.Sprint("deleted")
		case m.EditedAt != nil:
			state = color.Yellow.Sprint("edited")
		}
		return []string{m.ConversationID.String(), strconv.FormatUint(m.Seq, 10), m.SenderID, truncate(m.Content), stamp(m.CreatedAt), state}, nil
	},
	repositories.CollectionProfiles: func(_ string, value []byte) ([]string, error) {
		var p messaging.Profile
		if err := json.Unmarshal(value, &p); err != nil {
			return nil, err
		}
		return []string{p.UserID, p.DisplayName, string(p.Visibility), strconv.FormatBool(p.AllowFriendRequests)}, nil
	},
	repositories.CollectionBlocks: func(key string, _ []byte) ([]string, error) {
		blocker, blocked, ok := strings.Cut(key, "\x00")
		if !ok {
			return nil, fmt.Errorf("malformed block key %q", key)
		}
		return []string{blocker, blocked}, nil
	},
	repositories.CollectionNotifications: func(_ string, value []byte) ([]string, error) {
		var n messaging.Notification
		if err := json.Unmarshal(value, &n); err != nil {
			return nil, err
		}
		pairs := make([]string, 0, len(n.Payload))
		for k, v := range n.Payload {
			pairs = append(pairs, k+"="+v)
		}
		return []string{n.UserID, string(n.Type), truncate(strings.Join(pairs, " ")), stamp(n.CreatedAt)}, nil
	},
}

// render writes one collection as a borderless table and returns the number of rows.
// Records that cannot be decoded are reported inline instead of stopping the dump.
func render(w io.Writer, db *badger.DB, collection repositories.Collection, limit int) (int, error) {
	toRow, ok := rows[collection]
	if !ok {
		return 0, fmt.Errorf("unknown collection %q", collection)
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader(headers[collection])
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	count := 0
	err := repositories.Dump(db, collection, limit, func(key string, value []byte) error {
		row, err := toRow(key, value)
		if err != nil {
			_, _ = fmt.Fprintf(w, "Error decoding key %q: %v\n", key, err)
			return nil
		}
		table.Append(row)
		count++
		return nil
	})
	if err != nil {
		return 0, err
	}
	table.Render()
	return count, nil
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxCellWidth {
		return s
	}
	return string(r[:maxCellWidth-1]) + "…"
}
