package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Referenced entities, owned by the account service
			CREATE TABLE users (
				id VARCHAR(255) PRIMARY KEY,
				account_id VARCHAR(255),
				email VARCHAR(255),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE TABLE resources (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			-- Inner action: its id is the correlation id carried on the bus
			CREATE TABLE actions (
				id VARCHAR(255) PRIMARY KEY,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE TABLE user_actions (
				id VARCHAR(255) PRIMARY KEY,
				action_id VARCHAR(255) NOT NULL UNIQUE REFERENCES actions(id),
				user_action_type VARCHAR(100) NOT NULL,
				metadata JSONB NOT NULL DEFAULT '{}',
				user_id VARCHAR(255) NOT NULL REFERENCES users(id),
				resource_id VARCHAR(255) REFERENCES resources(id),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_user_actions_action_type ON user_actions(action_id, user_action_type);
			CREATE INDEX idx_user_actions_user_id ON user_actions(user_id);
			CREATE INDEX idx_user_actions_resource_id ON user_actions(resource_id);

			CREATE TABLE action_steps (
				id VARCHAR(255) PRIMARY KEY,
				action_id VARCHAR(255) NOT NULL REFERENCES actions(id) ON DELETE CASCADE,
				name VARCHAR(255) NOT NULL,
				status VARCHAR(20) NOT NULL CHECK (status IN ('Waiting', 'Running', 'Success', 'Failed')),
				position INT NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				completed_at TIMESTAMP WITH TIME ZONE,
				UNIQUE(action_id, name)
			);

			CREATE INDEX idx_action_steps_status_created_at ON action_steps(status, created_at);

			CREATE TABLE action_logs (
				id BIGSERIAL PRIMARY KEY,
				step_id VARCHAR(255) NOT NULL REFERENCES action_steps(id) ON DELETE CASCADE,
				level VARCHAR(20) NOT NULL,
				message TEXT NOT NULL,
				meta JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_action_logs_step_id ON action_logs(step_id, id);
		`,
	}
}
