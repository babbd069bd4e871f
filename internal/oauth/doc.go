// Package oauth implementa el token engine del authorization server: el
// state machine de canje de grants (Engine/Outcome), los services de Client
// y Authorization, y el registry de grant handlers provistos por el host.
//
// Toda falla de validación del canje se representa como el par OAuth2
// (error, error_description) dentro del Outcome — nunca como un error de Go.
// Los únicos errores que propagan del engine son fallas operacionales:
// agotamiento del retry de generación de códigos y fallas de persistencia
// que no sean "duplicado"/"no existe".
package oauth
