// Package repository define las entidades del dominio OAuth2 (Client,
// Authorization) y las interfaces de persistencia que los adapters de
// internal/store implementan.
//
// El core nunca ve errores específicos de un motor de storage: cada adapter
// clasifica sus errores a los sentinels de este paquete (ErrNotFound,
// ErrConflict). En particular, una violación de unicidad SIEMPRE llega al
// caller como ErrConflict — esa es la señal que consume el retry de
// securecode.GenerateUnique.
package repository
