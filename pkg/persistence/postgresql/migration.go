package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				tenant_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				is_active BOOLEAN NOT NULL DEFAULT false,
				trigger_type VARCHAR(50) NOT NULL,
				trigger JSONB NOT NULL,
				nodes JSONB NOT NULL DEFAULT '[]',
				edges JSONB NOT NULL DEFAULT '[]',
				max_steps INTEGER NOT NULL DEFAULT 0,
				total_executions BIGINT NOT NULL DEFAULT 0,
				last_executed TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflows_tenant ON workflows(tenant_id);
			CREATE INDEX idx_workflows_active_trigger ON workflows(tenant_id, trigger_type) WHERE is_active;

			CREATE TABLE executions (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id),
				tenant_id VARCHAR(255) NOT NULL,
				contact_id VARCHAR(255),
				recipient_email VARCHAR(320) NOT NULL,
				status VARCHAR(20) NOT NULL CHECK (status IN ('pending', 'running', 'completed', 'failed', 'cancelled')),
				current_node_id VARCHAR(255) NOT NULL,
				scheduled_for BIGINT NOT NULL,
				execution_data JSONB,
				step_count INTEGER NOT NULL DEFAULT 0,
				error_message TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_executions_due ON executions(scheduled_for) WHERE status = 'pending';
			CREATE INDEX idx_executions_active_recipient ON executions(workflow_id, recipient_email)
				WHERE status IN ('pending', 'running');
			CREATE INDEX idx_executions_running ON executions(started_at) WHERE status = 'running';
		`,
		2: `
			CREATE TABLE queued_emails (
				id VARCHAR(255) PRIMARY KEY,
				tenant_id VARCHAR(255) NOT NULL,
				source VARCHAR(20) NOT NULL,
				execution_id VARCHAR(255),
				to_email VARCHAR(320) NOT NULL,
				from_name VARCHAR(255) NOT NULL DEFAULT '',
				from_email VARCHAR(320) NOT NULL,
				subject TEXT NOT NULL,
				html_content TEXT NOT NULL,
				text_content TEXT,
				reply_to VARCHAR(320),
				headers JSONB,
				status VARCHAR(20) NOT NULL CHECK (status IN ('queued', 'sending', 'sent', 'failed')),
				priority INTEGER NOT NULL DEFAULT 5,
				attempts INTEGER NOT NULL DEFAULT 0,
				max_attempts INTEGER NOT NULL DEFAULT 3,
				queued_at TIMESTAMP WITH TIME ZONE NOT NULL,
				sent_at TIMESTAMP WITH TIME ZONE,
				next_retry_at TIMESTAMP WITH TIME ZONE,
				last_error TEXT
			);

			CREATE INDEX idx_queued_emails_claim ON queued_emails(tenant_id, priority, queued_at) WHERE status = 'queued';
			CREATE INDEX idx_queued_emails_sent ON queued_emails(tenant_id, sent_at) WHERE status = 'sent';
		`,
		3: `
			CREATE TABLE deliverability_events (
				id VARCHAR(255) PRIMARY KEY,
				tenant_id VARCHAR(255) NOT NULL,
				email VARCHAR(320) NOT NULL,
				type VARCHAR(30) NOT NULL,
				reason TEXT,
				occurred_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_deliverability_events_tenant ON deliverability_events(tenant_id, occurred_at);

			CREATE TABLE suppressions (
				tenant_id VARCHAR(255) NOT NULL,
				email VARCHAR(320) NOT NULL,
				status VARCHAR(20) NOT NULL,
				reason TEXT,
				since TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (tenant_id, email)
			);
		`,
		4: `
			CREATE TABLE tenants (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				owner_email VARCHAR(320) NOT NULL,
				from_name VARCHAR(255) NOT NULL,
				from_email VARCHAR(320) NOT NULL,
				reply_to VARCHAR(320)
			);

			CREATE TABLE contacts (
				tenant_id VARCHAR(255) NOT NULL,
				id VARCHAR(255) NOT NULL,
				email VARCHAR(320) NOT NULL,
				first_name VARCHAR(255),
				last_name VARCHAR(255),
				tags TEXT[] NOT NULL DEFAULT '{}',
				status VARCHAR(20) NOT NULL DEFAULT 'active',
				emails_sent BIGINT NOT NULL DEFAULT 0,
				emails_opened BIGINT NOT NULL DEFAULT 0,
				emails_clicked BIGINT NOT NULL DEFAULT 0,
				purchased_product_ids TEXT[] NOT NULL DEFAULT '{}',
				PRIMARY KEY (tenant_id, id)
			);

			CREATE INDEX idx_contacts_email ON contacts(tenant_id, email);

			CREATE TABLE email_templates (
				tenant_id VARCHAR(255) NOT NULL,
				id VARCHAR(255) NOT NULL,
				subject TEXT NOT NULL,
				html_content TEXT NOT NULL,
				text_content TEXT,
				PRIMARY KEY (tenant_id, id)
			);
		`,
		5: `
			ALTER TABLE queued_emails ADD COLUMN claimed_at TIMESTAMP WITH TIME ZONE;

			CREATE INDEX idx_queued_emails_sending ON queued_emails(claimed_at) WHERE status = 'sending';
		`,
	}
}
