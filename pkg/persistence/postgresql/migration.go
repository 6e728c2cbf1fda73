package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE scenarios (
				id VARCHAR(255) PRIMARY KEY,
				owner VARCHAR(255) NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL CHECK (status IN ('draft', 'active', 'paused', 'error')),
				data JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_scenarios_status ON scenarios(status);
			CREATE INDEX idx_scenarios_owner ON scenarios(owner);

			CREATE TABLE scenario_nodes (
				scenario_id VARCHAR(255) NOT NULL,
				id VARCHAR(255) NOT NULL,
				node_type VARCHAR(50) NOT NULL,
				position INT NOT NULL DEFAULT 0,
				data JSONB NOT NULL,
				PRIMARY KEY (scenario_id, id)
			);

			CREATE INDEX idx_scenario_nodes_position ON scenario_nodes(scenario_id, position);

			CREATE TABLE apps (
				id VARCHAR(255) PRIMARY KEY,
				data JSONB NOT NULL
			);

			CREATE TABLE connections (
				id VARCHAR(255) PRIMARY KEY,
				app_id VARCHAR(255) NOT NULL,
				owner VARCHAR(255) NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL,
				data JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_connections_app_id ON connections(app_id);
		`,
		2: `
			CREATE TABLE executions (
				id VARCHAR(255) PRIMARY KEY,
				scenario_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('running', 'completed', 'failed')),
				start_time TIMESTAMP WITH TIME ZONE NOT NULL,
				end_time TIMESTAMP WITH TIME ZONE,
				data JSONB NOT NULL
			);

			CREATE INDEX idx_executions_scenario_id ON executions(scenario_id, start_time DESC);
			CREATE INDEX idx_executions_status ON executions(status);

			CREATE TABLE checkpoints (
				id VARCHAR(255) PRIMARY KEY,
				execution_id VARCHAR(255) NOT NULL,
				scenario_id VARCHAR(255) NOT NULL,
				reason VARCHAR(50) NOT NULL,
				data JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_checkpoints_execution_id ON checkpoints(execution_id, created_at);
		`,
	}
}
