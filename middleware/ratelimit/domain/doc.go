// Package domain define contratos e tipos de domínio para o rate limit por pontos,
// a classificação de chamadores (tiers) e o limite de concorrência.
//
// Este pacote não depende de net/http nem de implementações concretas.
// A intenção é permitir testes de unidade puros e desacoplar regras de negócio
// de detalhes de infraestrutura (Redis, JWT, etc).
package domain
