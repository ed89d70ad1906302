package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	`CREATE TABLE IF NOT EXISTS profiles (
		id UUID PRIMARY KEY,
		first_name VARCHAR(100) NOT NULL,
		last_name VARCHAR(100) NOT NULL DEFAULT '',
		avatar_url TEXT,
		role VARCHAR(16) NOT NULL DEFAULT 'technician',
		phone VARCHAR(32),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT profiles_role_check CHECK (role IN ('admin', 'manager', 'supervisor', 'technician', 'contractor'))
	);`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		task_id VARCHAR(15) NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		location TEXT,
		equipment_number VARCHAR(64) NOT NULL,
		notification_num VARCHAR(10),
		type_of_work VARCHAR(32),
		priority VARCHAR(16) NOT NULL DEFAULT 'medium',
		status VARCHAR(16) NOT NULL DEFAULT 'unassigned',
		assignee_id UUID REFERENCES profiles(id) ON DELETE SET NULL,
		assigned_by_id UUID REFERENCES profiles(id) ON DELETE SET NULL,
		closed_by_id UUID REFERENCES profiles(id) ON DELETE SET NULL,
		closed_at TIMESTAMPTZ,
		photo_before_urls TEXT[] NOT NULL DEFAULT '{}',
		photo_after_urls TEXT[] NOT NULL DEFAULT '{}',
		photo_permit_url TEXT,
		creator_id UUID NOT NULL REFERENCES profiles(id),
		due_date DATE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT tasks_task_id_key UNIQUE (task_id),
		CONSTRAINT tasks_notification_num_key UNIQUE (notification_num),
		CONSTRAINT tasks_task_id_format CHECK (task_id ~ '^[1-9][0-9]{14}$'),
		CONSTRAINT tasks_notification_num_format CHECK (notification_num IS NULL OR notification_num ~ '^[0-9]{10}$'),
		CONSTRAINT tasks_status_check CHECK (status IN ('unassigned', 'assigned', 'in-progress', 'completed', 'cancelled')),
		CONSTRAINT tasks_priority_check CHECK (priority IN ('low', 'medium', 'high', 'urgent')),
		CONSTRAINT tasks_type_of_work_check CHECK (type_of_work IS NULL OR type_of_work IN ('corrective', 'preventive', 'inspection', 'installation', 'emergency'))
	);`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks (status);`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_assignee_id ON tasks (assignee_id);`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_creator_id ON tasks (creator_id);`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks (created_at DESC);`,
	`CREATE TABLE IF NOT EXISTS task_audits (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		task_id UUID NOT NULL,
		action VARCHAR(32) NOT NULL,
		actor_id UUID NOT NULL,
		from_status VARCHAR(16),
		to_status VARCHAR(16),
		changes JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_task_audits_task_id ON task_audits (task_id, created_at);`,
	`CREATE OR REPLACE FUNCTION set_updated_at()
	RETURNS TRIGGER AS $$
	BEGIN
		NEW.updated_at = NOW();
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql;`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = 'trg_tasks_updated_at') THEN
			CREATE TRIGGER trg_tasks_updated_at
				BEFORE UPDATE ON tasks
				FOR EACH ROW
				EXECUTE PROCEDURE set_updated_at();
		END IF;
	END
	$$;`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = 'trg_profiles_updated_at') THEN
			CREATE TRIGGER trg_profiles_updated_at
				BEFORE UPDATE ON profiles
				FOR EACH ROW
				EXECUTE PROCEDURE set_updated_at();
		END IF;
	END
	$$;`,
	// Photo arrays are reduced to counts so the payload stays under the
	// 8000 byte NOTIFY limit.
	`CREATE OR REPLACE FUNCTION tasks_compact_row(t tasks)
	RETURNS JSONB AS $$
		SELECT jsonb_build_object(
			'id', t.id,
			'task_id', t.task_id,
			'title', left(t.title, 200),
			'creator_id', t.creator_id,
			'assignee_id', t.assignee_id,
			'status', t.status,
			'photo_before_count', coalesce(array_length(t.photo_before_urls, 1), 0),
			'photo_after_count', coalesce(array_length(t.photo_after_urls, 1), 0),
			'has_permit', t.photo_permit_url IS NOT NULL AND t.photo_permit_url <> ''
		);
	$$ LANGUAGE sql IMMUTABLE;`,
	`CREATE OR REPLACE FUNCTION tasks_notify_change()
	RETURNS TRIGGER AS $$
	DECLARE
		payload JSONB;
	BEGIN
		payload := jsonb_build_object(
			'eventType', TG_OP,
			'table', TG_TABLE_NAME,
			'new', CASE WHEN TG_OP = 'DELETE' THEN NULL ELSE tasks_compact_row(NEW) END,
			'old', CASE WHEN TG_OP = 'INSERT' THEN NULL ELSE tasks_compact_row(OLD) END
		);
		PERFORM pg_notify('tasks_changes', payload::text);
		RETURN NULL;
	END;
	$$ LANGUAGE plpgsql;`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = 'trg_tasks_notify_change') THEN
			CREATE TRIGGER trg_tasks_notify_change
				AFTER INSERT OR UPDATE OR DELETE ON tasks
				FOR EACH ROW
				EXECUTE PROCEDURE tasks_notify_change();
		END IF;
	END
	$$;`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
