package rundb

import (
	"github.com/BurntSushi/migration"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/yolotrain/pkg/dbh"
)

func Migrations(log logs.Log) []migration.Migrator {
	migs := []migration.Migrator{}
	idx := 0

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE TABLE build(
			id INTEGER PRIMARY KEY,
			created_at INT NOT NULL,
			source_dir TEXT NOT NULL,
			root TEXT NOT NULL,
			ratios TEXT NOT NULL,
			seed INT NOT NULL,
			train INT NOT NULL,
			val INT NOT NULL,
			test INT NOT NULL,
			skipped INT NOT NULL,
			unmatched INT NOT NULL,
			error TEXT
		);

		CREATE TABLE run(
			id INTEGER PRIMARY KEY,
			run_id TEXT NOT NULL,
			dataset_root TEXT NOT NULL,
			command TEXT NOT NULL,
			started_at INT NOT NULL,
			finished_at INT,
			state TEXT NOT NULL,
			exit_code INT NOT NULL,
			error TEXT
		);
	`))

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE UNIQUE INDEX idx_run_run_id ON run(run_id);
		CREATE INDEX idx_run_started_at ON run(started_at);
		CREATE INDEX idx_build_created_at ON build(created_at);
	`))

	return migs
}
