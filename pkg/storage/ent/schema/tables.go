package schema

import (
	entschema "entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

const (
	// ConversationsTableName is the table holding one row per conversation.
	ConversationsTableName = "conversations"

	// MessagesTableName is the table holding the ordered message log.
	MessagesTableName = "messages"
)

var (
	// ConversationsColumns holds the columns for the "conversations" table.
	ConversationsColumns = []*entschema.Column{
		{Name: "id", Type: field.TypeString, Unique: true},
		{Name: "owner_id", Type: field.TypeString},
		{Name: "title", Type: field.TypeString, Size: 2147483647},
		{Name: "is_shared", Type: field.TypeBool, Default: false},
		{Name: "share_token", Type: field.TypeString, Unique: true, Nullable: true},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
		{Name: "last_message_at", Type: field.TypeTime},
	}

	// ConversationsTable holds the schema information for the "conversations" table.
	ConversationsTable = &entschema.Table{
		Name:       ConversationsTableName,
		Columns:    ConversationsColumns,
		PrimaryKey: []*entschema.Column{ConversationsColumns[0]},
		Indexes: []*entschema.Index{
			{
				Name:    "conversation_owner_id_last_message_at",
				Unique:  false,
				Columns: []*entschema.Column{ConversationsColumns[1], ConversationsColumns[7]},
			},
		},
	}

	// MessagesColumns holds the columns for the "messages" table.
	// seq is a monotonically increasing insertion counter and defines the
	// order of messages within a conversation.
	MessagesColumns = []*entschema.Column{
		{Name: "seq", Type: field.TypeInt64, Increment: true},
		{Name: "conversation_id", Type: field.TypeString},
		{Name: "message_id", Type: field.TypeString},
		{Name: "client_id", Type: field.TypeString, Nullable: true},
		{Name: "role", Type: field.TypeString},
		{Name: "content", Type: field.TypeString, Size: 2147483647},
		{Name: "parts", Type: field.TypeJSON, Nullable: true},
		{Name: "created_at", Type: field.TypeTime},
	}

	// MessagesTable holds the schema information for the "messages" table.
	MessagesTable = &entschema.Table{
		Name:       MessagesTableName,
		Columns:    MessagesColumns,
		PrimaryKey: []*entschema.Column{MessagesColumns[0]},
		ForeignKeys: []*entschema.ForeignKey{
			{
				Symbol:     "messages_conversations_messages",
				Columns:    []*entschema.Column{MessagesColumns[1]},
				RefColumns: []*entschema.Column{ConversationsColumns[0]},
				OnDelete:   entschema.Cascade,
			},
		},
		Indexes: []*entschema.Index{
			{
				Name:    "message_conversation_id_message_id",
				Unique:  true,
				Columns: []*entschema.Column{MessagesColumns[1], MessagesColumns[2]},
			},
			{
				Name:    "message_conversation_id_seq",
				Unique:  false,
				Columns: []*entschema.Column{MessagesColumns[1], MessagesColumns[0]},
			},
		},
	}

	// Tables holds all the tables in the schema.
	Tables = []*entschema.Table{
		ConversationsTable,
		MessagesTable,
	}
)

func init() {
	MessagesTable.ForeignKeys[0].RefTable = ConversationsTable
}
