package i18n

var ptBRMessages = map[Code]string{
	CodeConfigurationSecretMissing: "O serviço de pontuação não está configurado. Tente novamente mais tarde.",
	CodeSimulationInputMissing:     "Uma tarefa, a lista de tarefas do jogo e um usuário são necessários para simular pontos.",
	CodeSimulationCohortInvalid:    "Coorte de simulação desconhecida {{.Cohort}}.",
	CodeSnapshotMalformed:          "A prévia de pontos enviada não pôde ser lida.",
	CodeStrategyNotFound:           "A estratégia de pontuação {{.StrategyID}} não existe.",
	CodeStrategyVariableInvalid:    "O valor {{.Value}} não é válido para a variável {{.Name}}.",
	CodeRateLimitExceeded:          "Muitas requisições para {{.Scope}}: o limite é {{number .Limit}} por {{.Window}}.",
	CodeNotFound:                   "O registro solicitado não foi encontrado.",
}
