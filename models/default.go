package models

import (
	"context"
	"errors"

	"bitbucket.org/klosetlabs/kloset_backend/utils"
	mysqlDriver "github.com/go-sql-driver/mysql"
)

func isDuplicateKeyError(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

func callerFromContext(ctx context.Context) TransitionCaller {
	userId, _ := utils.GetUserIdFromContext(ctx)
	role, _ := utils.GetRoleFromContext(ctx)
	isAdmin, _ := utils.GetIsAdminFromContext(ctx)
	return TransitionCaller{
		UserId:  userId,
		Role:    UserRole(role),
		IsAdmin: isAdmin || UserRole(role) == UserRoleAdmin,
	}
}
