package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/modauth/internal/dbx"
	"github.com/dmitrijs2005/modauth/internal/server/repositories/grants"
	"github.com/dmitrijs2005/modauth/internal/server/repositories/modules"
	"github.com/dmitrijs2005/modauth/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Modules(db dbx.DBTX) modules.Repository
	Grants(db dbx.DBTX) grants.Repository
}
