package postgresql

// migrations maps schema versions to their DDL, applied in order by the
// sqlbase migration manager.
var migrations = map[int]string{
	1: `
		CREATE TABLE IF NOT EXISTS workflows (
			id UUID PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			trigger_type TEXT NOT NULL,
			trigger_config JSONB,
			root_step_id TEXT,
			steps JSONB NOT NULL DEFAULT '{}',
			allow_reentry BOOLEAN NOT NULL DEFAULT FALSE,
			reentry_delay BIGINT NOT NULL DEFAULT 0,
			exit_on_goal BOOLEAN NOT NULL DEFAULT FALSE,
			goal JSONB,
			counters JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			deleted_at TIMESTAMP WITH TIME ZONE
		);

		CREATE INDEX IF NOT EXISTS idx_workflows_status ON workflows (status) WHERE deleted_at IS NULL;
		CREATE INDEX IF NOT EXISTS idx_workflows_tenant ON workflows (tenant_id) WHERE deleted_at IS NULL;
	`,
	2: `
		CREATE TABLE IF NOT EXISTS enrollments (
			id UUID PRIMARY KEY,
			workflow_id UUID NOT NULL,
			contact_id TEXT NOT NULL,
			status TEXT NOT NULL,
			current_step_id TEXT,
			enrolled_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			next_action_at TIMESTAMP WITH TIME ZONE,
			ended_at TIMESTAMP WITH TIME ZONE,
			exit_reason TEXT,
			retry_count INTEGER NOT NULL DEFAULT 0,
			stop_requested BOOLEAN NOT NULL DEFAULT FALSE,
			source TEXT NOT NULL DEFAULT '',
			history JSONB NOT NULL DEFAULT '[]',
			claim_token TEXT,
			claim_expires_at TIMESTAMP WITH TIME ZONE
		);

		CREATE INDEX IF NOT EXISTS idx_enrollments_workflow_contact ON enrollments (workflow_id, contact_id);
		CREATE INDEX IF NOT EXISTS idx_enrollments_due ON enrollments (next_action_at) WHERE status IN ('active', 'waiting');
	`,
	3: `
		CREATE TABLE IF NOT EXISTS activity_log (
			id UUID PRIMARY KEY,
			enrollment_id UUID NOT NULL,
			step_id TEXT,
			action TEXT NOT NULL,
			status TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			data JSONB,
			timestamp TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_activity_log_enrollment ON activity_log (enrollment_id, timestamp);
	`,
}
