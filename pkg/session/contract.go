package session

// EnvContract renders the environment variables a runtime deployment needs
// to consume a converged identity. The provisioner prints this after a
// successful run; the password is deliberately absent, federated sessions
// have no secret to pass.
func EnvContract(account, user, role, warehouse, database string) map[string]string {
	contract := map[string]string{
		VarDeploymentEnv: string(EnvAWS),
		VarAccount:       account,
		VarUser:          user,
		VarRole:          role,
		VarDatabase:      database,
	}
	if warehouse != "" {
		contract[VarWarehouse] = warehouse
	}
	return contract
}
