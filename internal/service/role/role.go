package role

import (
	"fmt"

	"chainless-core/internal/model"
	"chainless-core/pkg/errno"
)

// ResolveRole 根据策略判断持有某公钥的设备角色
func ResolveRole(s *model.Strategy, holdPubkey *string) model.Role {
	if s == nil || holdPubkey == nil {
		return model.RoleUndefined
	}
	if *holdPubkey == s.MasterPubkey {
		return model.RoleMaster
	}
	if s.HasServant(*holdPubkey) {
		return model.RoleServant
	}
	return model.RoleUndefined
}

// CheckRole 角色必须严格相等，不存在主设备兼任从设备的情况
func CheckRole(current, required model.Role) error {
	if current != required {
		return errno.ErrRoleIneligible.WithMessage(
			fmt.Sprintf("device role %s ineligible, require %s", current, required))
	}
	return nil
}
