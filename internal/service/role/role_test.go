package role

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainless-core/internal/model"
	"chainless-core/internal/testutil"
	"chainless-core/pkg/errno"
)

func strPtr(s string) *string { return &s }

func TestResolveRole(t *testing.T) {
	s := &model.Strategy{MasterPubkey: "k1", ServantPubkeys: []string{"k2", "k3"}}

	tests := []struct {
		name string
		s    *model.Strategy
		key  *string
		want model.Role
	}{
		{"master", s, strPtr("k1"), model.RoleMaster},
		{"servant", s, strPtr("k3"), model.RoleServant},
		{"unknown key", s, strPtr("k9"), model.RoleUndefined},
		{"no key", s, nil, model.RoleUndefined},
		{"no strategy", nil, strPtr("k1"), model.RoleUndefined},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveRole(tt.s, tt.key))
		})
	}
}

func TestCheckRoleExactMatch(t *testing.T) {
	assert.NoError(t, CheckRole(model.RoleMaster, model.RoleMaster))

	// 主设备不能执行从设备操作
	err := CheckRole(model.RoleMaster, model.RoleServant)
	assert.ErrorIs(t, err, errno.ErrRoleIneligible)
	assert.Contains(t, err.Error(), "Master")
	assert.Contains(t, err.Error(), "Servant")

	assert.ErrorIs(t, CheckRole(model.RoleUndefined, model.RoleMaster), errno.ErrRoleIneligible)
}

func TestLoad(t *testing.T) {
	db := testutil.NewDB(t)

	account := "k1"
	user := model.User{Contact: "a@example.com", ContactType: model.ContactEmail, PasswordHash: "x", MainAccount: &account}
	require.NoError(t, db.Create(&user).Error)
	require.NoError(t, db.Create(&model.Device{DeviceID: "d1", UserID: user.ID, State: model.DeviceActive, HoldPubkey: strPtr("k2")}).Error)
	require.NoError(t, db.Create(&model.Strategy{AccountID: "k1", UserID: user.ID, MasterPubkey: "k1", ServantPubkeys: []string{"k2"}}).Error)

	ctx, err := Load(db, Actor{UserID: user.ID, DeviceID: "d1"}, LockNone)
	require.NoError(t, err)
	assert.Equal(t, model.RoleServant, ctx.Role)
	assert.Equal(t, "k2", ctx.HoldPubkey())
	assert.NoError(t, ctx.RequireStrategy())
	assert.ErrorIs(t, ctx.Require(model.RoleMaster), errno.ErrRoleIneligible)

	_, err = Load(db, Actor{UserID: user.ID, DeviceID: "nope"}, LockNone)
	assert.ErrorIs(t, err, errno.ErrDeviceNotFound)

	_, err = Load(db, Actor{UserID: 999, DeviceID: "d1"}, LockNone)
	assert.ErrorIs(t, err, errno.ErrUserNotFound)

	_, err = LockStrategy(db, "missing", LockUpdate)
	assert.ErrorIs(t, err, errno.ErrStrategyNotFound)
}
